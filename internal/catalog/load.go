package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/gridsync/internal/ir"
)

// LoadMode controls how errors are handled while loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Error codes for catalog loading.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"

	ErrCodeTableType       = "E101" // missing table type
	ErrCodeUniqueKeys      = "E102" // malformed unique_keys
	ErrCodeDuplicateKey    = "E103" // unique key listed twice
	ErrCodeReservedKey     = "E104" // id used as a unique key
	ErrCodeInvalidName     = "E105" // table name is not a snake_case identifier
	ErrCodeDuplicateTable  = "E106"
	ErrCodeNoTables        = "E107"
	ErrCodeInvalidFieldVal = "E108"
)

// LoadError is a catalog loading or validation error.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads every .cue file in dir and builds the catalog.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func Load(dir string, mode LoadMode) (*Catalog, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	return FromValue(value, mode)
}

// LoadString builds a catalog from CUE source.
func LoadString(src string, mode LoadMode) (*Catalog, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, []error{convertCUEError(err)}
	}
	return FromValue(value, mode)
}

// FromValue extracts the table specs under the top-level "table" field.
func FromValue(value cue.Value, mode LoadMode) (*Catalog, []error) {
	var errs []error
	tablesVal := value.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, []error{&LoadError{Code: ErrCodeNoTables, Message: "no tables found in catalog"}}
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating tables: %v", err)}}
	}

	var tables []ir.TableSpec
	for iter.Next() {
		spec, cerr := CompileTable(iter.Value())
		if cerr == nil {
			if verrs := Validate(spec); len(verrs) > 0 {
				cerr = verrs[0]
				if mode == LoadModeCollectAll {
					errs = append(errs, verrs[1:]...)
				}
			}
		}
		if cerr != nil {
			errs = append(errs, cerr)
			if mode == LoadModeFailFast {
				return nil, errs
			}
			continue
		}
		tables = append(tables, spec)
	}

	if len(tables) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoTables, Message: "no tables found in catalog"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	c, err := New(tables)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeDuplicateTable, Message: err.Error()}}
	}
	return c, nil
}

// CompileTable parses one table struct. The table name is the struct label.
func CompileTable(v cue.Value) (ir.TableSpec, error) {
	if err := v.Err(); err != nil {
		return ir.TableSpec{}, convertCUEError(err)
	}

	var spec ir.TableSpec
	if sels := v.Path().Selectors(); len(sels) > 0 {
		spec.Name = sels[len(sels)-1].String()
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return spec, &LoadError{Code: ErrCodeTableType, Message: fmt.Sprintf("table %s: type is required", spec.Name), Pos: v.Pos()}
	}
	typ, err := typeVal.String()
	if err != nil {
		return spec, convertCUEError(err)
	}
	spec.Type = typ

	if keysVal := v.LookupPath(cue.ParsePath("unique_keys")); keysVal.Exists() {
		if err := keysVal.Decode(&spec.UniqueKeys); err != nil {
			return spec, &LoadError{
				Code:    ErrCodeUniqueKeys,
				Message: fmt.Sprintf("table %s: unique_keys must be a list of strings", spec.Name),
				Pos:     keysVal.Pos(),
			}
		}
	}

	if descVal := v.LookupPath(cue.ParsePath("description")); descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return spec, &LoadError{
				Code:    ErrCodeInvalidFieldVal,
				Message: fmt.Sprintf("table %s: description must be a string", spec.Name),
				Pos:     descVal.Pos(),
			}
		}
		spec.Description = desc
	}
	return spec, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCUEError keeps the first position CUE reports.
func convertCUEError(err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		if pos := cueerrors.Positions(errs[0]); len(pos) > 0 {
			return &LoadError{Code: ErrCodeBuildFailed, Message: errs[0].Error(), Pos: pos[0]}
		}
	}
	return &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
}
