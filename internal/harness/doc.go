// Package harness runs reconciliation scenarios written in YAML.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	table:
//	  name: cargo_types
//	  type: master
//	  unique_keys: [cargo_type]
//	tenant_id: 6
//	headers: [id, cargo_type, description, version, is_active]
//	rows:
//	  - { cargo_type: bulk }
//	flow:
//	  - action: push
//	    select: "1-2"
//	    expect:
//	      title: Success
//	      message: "1 row(s) created"
//	assertions:
//	  - type: cell
//	    row: 1
//	    column: id
//	    equals: 1
//	  - type: final_state
//	    where: { cargo_type: bulk }
//	    expect: { version: 1 }
//
// # Stores
//
// By default a scenario runs against a fresh in-memory SQLite record store,
// optionally seeded with records before the flow. With `store: scripted`
// every push or delete step supplies the bulk response the store returns,
// which is how positional demultiplexing is exercised against exact ids.
//
// # Assertion Types
//
//   - cell: a grid cell equals a value, or is empty
//   - request_count: the number of bulk requests sent by the whole flow
//   - transitions: the state sequence one step went through
//   - final_state: exactly one active record matches where, and carries expect
//
// # Deterministic Testing
//
// Pass ids come from testutil.CountingPassIDGenerator, transition sequence
// numbers from testutil.DeterministicClock and store timestamps from
// testutil.SteppingTime, so the snapshot of a run is stable and can be
// compared against testdata/golden with RunWithGolden.
package harness
