package recipe

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/kitchen"
)

var (
	// ErrNotARecipeOrKitchen is returned when the `.dk` meta directory cannot be found.
	ErrNotARecipeOrKitchen = kitchen.ErrNotARecipeOrKitchen

	// ErrRecipeNotFoundRemote is returned when the remote tree has no entry for the recipe.
	ErrRecipeNotFoundRemote = errors.New("recipe does not exist remotely")

	// ErrMalformedLocalState marks unreadable FILE_SHA or conflicts.json content.
	// Callers treat it as absence of the snapshot.
	ErrMalformedLocalState = errors.New("malformed local state")

	ErrUnresolvedConflictsRemain = errors.New("unresolved conflicts remain")
	ErrConflictNotFound          = errors.New("no matching conflict")
)

// UnresolvedConflictsError lists every working-set file that has no `.resolved` artifact.
type UnresolvedConflictsError struct {
	Paths []string
}

func (e *UnresolvedConflictsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnresolvedConflictsRemain, strings.Join(e.Paths, ", "))
}

func (e *UnresolvedConflictsError) Is(target error) bool {
	return target == ErrUnresolvedConflictsRemain
}

// NewUnresolvedConflictsError returns the error with a hint pointing at file-resolve.
func NewUnresolvedConflictsError(paths []string) error {
	return errors.WithHint(
		&UnresolvedConflictsError{Paths: paths},
		"resolve each file with 'dk file-merge' and 'dk file-resolve' before committing",
	)
}

// RecipeNotFound reports a recipe missing from the remote kitchen.
func RecipeNotFound(kitchenName, recipeName string) error {
	return errors.WithHint(
		errors.Wrapf(ErrRecipeNotFoundRemote, "recipe %s in kitchen %s", recipeName, kitchenName),
		"check the recipe name, or create it with the web UI first",
	)
}
