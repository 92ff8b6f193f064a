package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintOf(t *testing.T) {
	a := Upload{Name: "a.pdf", Data: []byte("alpha")}
	b := Upload{Name: "b.pdf", Data: []byte("bravo")}

	t.Run("identical sets match", func(t *testing.T) {
		assert.Equal(t, FingerprintOf([]Upload{a, b}), FingerprintOf([]Upload{a, b}))
	})

	t.Run("order does not matter", func(t *testing.T) {
		assert.Equal(t, FingerprintOf([]Upload{a, b}), FingerprintOf([]Upload{b, a}))
	})

	t.Run("added file changes fingerprint", func(t *testing.T) {
		assert.NotEqual(t, FingerprintOf([]Upload{a}), FingerprintOf([]Upload{a, b}))
	})

	t.Run("resized file changes fingerprint", func(t *testing.T) {
		grown := Upload{Name: "a.pdf", Data: []byte("alpha!")}
		assert.NotEqual(t, FingerprintOf([]Upload{a}), FingerprintOf([]Upload{grown}))
	})

	t.Run("same name and size but different content", func(t *testing.T) {
		other := Upload{Name: "a.pdf", Data: []byte("omega")}
		require.Equal(t, a.Size(), other.Size())
		assert.NotEqual(t, FingerprintOf([]Upload{a}), FingerprintOf([]Upload{other}))
	})

	t.Run("short form", func(t *testing.T) {
		assert.Len(t, FingerprintOf([]Upload{a}).Short(), 12)
	})
}

func TestTurnConstructors(t *testing.T) {
	u := UserTurn("hello")
	assert.Equal(t, RoleUser, u.Role)
	assert.Equal(t, Message{Role: RoleUser, Content: "hello"}, u.Message())

	a := AssistantTurn("hi")
	assert.Equal(t, RoleAssistant, a.Role)
	assert.Equal(t, "assistant", a.Role.String())
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"document load", &DocumentLoadError{File: "x.pdf", Err: cause}, `failed to load document "x.pdf": boom`},
		{"embedding", &EmbeddingError{Err: cause}, "embedding failed: boom"},
		{"generation", &GenerationError{Stage: "answer", Err: cause}, "generation failed during answer: boom"},
		{"generation without stage", &GenerationError{Err: cause}, "generation failed: boom"},
		{"retrieval", &RetrievalError{Err: cause}, "retrieval failed: boom"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.EqualError(t, tc.err, tc.want)
			assert.ErrorIs(t, fmt.Errorf("wrapped: %w", tc.err), cause)
		})
	}

	var retrievalErr *RetrievalError
	err := fmt.Errorf("turn: %w", &RetrievalError{Err: ErrIndexNotReady})
	require.ErrorAs(t, err, &retrievalErr)
	assert.ErrorIs(t, err, ErrIndexNotReady)
}
