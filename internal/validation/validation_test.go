package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestID_ValidAndInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		want  string
		errIs error
	}{
		{name: "empty", in: "", want: "", errIs: nil},
		{name: "simple", in: "content-1", want: "content-1", errIs: nil},
		{name: "dot", in: ".", want: "", errIs: ErrInvalidID},
		{name: "dotdot", in: "..", want: "", errIs: ErrInvalidID},
		{name: "slash", in: "a/b", want: "", errIs: ErrInvalidID},
		{name: "backslash", in: `a\b`, want: "", errIs: ErrInvalidID},
		{name: "traversal", in: "../escape", want: "", errIs: ErrInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ID(tt.in)
			assert.Equal(t, tt.want, got)
			assert.ErrorIs(t, err, tt.errIs)
		})
	}
}

func TestContextContentProjectID_DelegateToID(t *testing.T) {
	t.Parallel()

	for _, fn := range []func(string) (string, error){ContextID, ContentID, ProjectID} {
		got, err := fn("../escape")
		assert.Empty(t, got)
		assert.ErrorIs(t, err, ErrInvalidID)
	}
}
