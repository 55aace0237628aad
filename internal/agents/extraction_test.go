package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/asave/internal/llm"
)

func TestIsNoAmbiguities_CaseInsensitive(t *testing.T) {
	for _, text := range []string{
		"NO SIGNIFICANT AMBIGUITIES FOUND",
		"no significant ambiguities found",
		"No Significant Ambiguities Found in this chunk.",
	} {
		assert.True(t, IsNoAmbiguities(text), text)
	}
	assert.False(t, IsNoAmbiguities("1. The term 'prime cost' is undefined."))
}

func TestAmbiguityFocus(t *testing.T) {
	tests := []struct {
		name string
		res  llm.Result
		want string
	}{
		{"failed result", llm.Failure(errors.New("quota")), GenericReviewFocus},
		{"sentinel", llm.Result{Text: "NO SIGNIFICANT AMBIGUITIES FOUND in this chunk."}, GenericReviewFocus},
		{"first of many", llm.Result{Text: "Ambiguities:\n1. 'Prime cost' is undefined.\n2. Timing is unclear."}, "'Prime cost' is undefined."},
		{"single finding", llm.Result{Text: "1. Dismantling costs lack a measurement basis."}, "Dismantling costs lack a measurement basis."},
		{"unnumbered", llm.Result{Text: "The clause is vague about timing."}, "The clause is vague about timing."},
		{"blank", llm.Result{Text: "  "}, GenericReviewFocus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AmbiguityFocus(tt.res))
		})
	}
}

func TestExtractionAgent_FindAmbiguities(t *testing.T) {
	gen := (&scriptGenerator{}).on("potential ambiguities", "1. A\n2. B")
	a := NewExtractionAgent(gen.backend(), nil)

	res := a.FindAmbiguities(context.Background(), "The cost shall comprise the prime cost.")
	assert.False(t, res.Failed)
	assert.Equal(t, "1. A\n2. B", res.Text)

	calls := gen.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], extractionSystem)
	assert.Contains(t, calls[0], "The cost shall comprise the prime cost.")
}

func TestExtractionAgent_TransportFailure(t *testing.T) {
	gen := (&scriptGenerator{}).fail("", errors.New("connection reset"))
	a := NewExtractionAgent(gen.backend(), nil)

	res := a.ExtractDefinitions(context.Background(), "chunk")
	assert.True(t, res.Failed)
	assert.ErrorIs(t, res.Err, llm.ErrTransport)
	assert.Contains(t, res.Text, "connection reset")
}

func TestExtractionAgent_IdentifyKeyClauses_NotInitialized(t *testing.T) {
	gen := &scriptGenerator{}
	a := NewExtractionAgent(gen.backend(), nil)

	ans := a.IdentifyKeyClauses(context.Background(), "ijarah", "FAS 32")
	assert.True(t, ans.Failed)
	assert.ErrorIs(t, ans.Err, ErrNotInitialized)
	assert.Empty(t, gen.calls())
}

func TestExtractionAgent_IdentifyKeyClauses(t *testing.T) {
	gen := (&scriptGenerator{}).on("Helpful Answer:", "The lessee recognises a right-of-use asset.")
	fas := &stubSearcher{snippets: snippets("Clause 23 on cost.", "Clause 31 on prime cost.", "Clause 40.", "Clause 50.")}
	a := NewExtractionAgent(gen.backend(), fas)

	ans := a.IdentifyKeyClauses(context.Background(), "right-of-use asset", "")
	require.False(t, ans.Failed)
	assert.Equal(t, "The lessee recognises a right-of-use asset.", ans.Text)
	assert.Equal(t, []string{"Clause 23 on cost.", "Clause 31 on prime cost.", "Clause 40."}, ans.Sources)

	calls := gen.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "Clause 31 on prime cost.")
	assert.Contains(t, calls[0], "in the standard?")
	require.Len(t, fas.queries, 1)
	assert.Contains(t, fas.queries[0], "right-of-use asset")
}

func TestExtractionAgent_IdentifyKeyClauses_RetrievalFailure(t *testing.T) {
	gen := &scriptGenerator{}
	a := NewExtractionAgent(gen.backend(), &stubSearcher{err: errors.New("index missing")})

	ans := a.IdentifyKeyClauses(context.Background(), "ijarah", "FAS 32")
	assert.True(t, ans.Failed)
	assert.Contains(t, ans.Text, "index missing")
	assert.Empty(t, gen.calls())
}
