package protect

import "fmt"

// Lockable is a grid whose protection can be toggled.
type Lockable interface {
	Protected() bool
	SetProtected(on bool) error
}

// WithUnlocked runs fn with protection lifted and restores the previous
// protection state afterwards, on every exit path including a panic in fn.
//
// A grid that was not protected is left alone. An error restoring
// protection is returned when fn itself succeeded.
func WithUnlocked(g Lockable, fn func() error) (err error) {
	was := g.Protected()
	if was {
		if uerr := g.SetProtected(false); uerr != nil {
			return fmt.Errorf("unlock grid: %w", uerr)
		}
		defer func() {
			if rerr := g.SetProtected(true); rerr != nil && err == nil {
				err = fmt.Errorf("relock grid: %w", rerr)
			}
		}()
	}
	return fn()
}
