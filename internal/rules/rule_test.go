package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRule() ComplianceRule {
	return ComplianceRule{
		RuleID:                  "SS8_Murabaha_THE_INSTITUTION_MUST_OWN",
		StandardRef:             "AAOIFI SS 8, Clause 2/2/1",
		PrincipleKeywords:       []string{"ownership", "possession"},
		Description:             "The institution must own & possess the asset before selling it.",
		ValidationQueryTemplate: "Does '{clause_text}' comply with '{rule_description}'?",
	}
}

func TestComplianceRule_EmptyKeywordsSurviveRoundTrip(t *testing.T) {
	r := sampleRule()
	r.PrincipleKeywords = []string{}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"principle_keywords":[]`)

	var got ComplianceRule
	require.NoError(t, json.Unmarshal(data, &got))
	if diff := cmp.Diff(r, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestComplianceRule_NilKeywordsMarshalAsArray(t *testing.T) {
	r := sampleRule()
	r.PrincipleKeywords = nil

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"principle_keywords":[]`)
	assert.NotContains(t, string(data), "null")
}

func TestComplianceRule_FieldOrder(t *testing.T) {
	data, err := json.Marshal(sampleRule())
	require.NoError(t, err)

	s := string(data)
	keys := []string{`"rule_id"`, `"standard_ref"`, `"principle_keywords"`, `"description"`, `"validation_query_template"`}
	last := -1
	for _, k := range keys {
		idx := indexOf(s, k)
		require.Greater(t, idx, last, "key %s out of order in %s", k, s)
		last = idx
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestUniqueIDs(t *testing.T) {
	in := []ComplianceRule{
		{RuleID: "A"}, {RuleID: "B"}, {RuleID: "A"}, {RuleID: "A_2"}, {RuleID: "A"},
	}
	got := UniqueIDs(in)

	var ids []string
	for _, r := range got {
		ids = append(ids, r.RuleID)
	}
	assert.Equal(t, []string{"A", "B", "A_3", "A_2", "A_4"}, ids)
	assert.Equal(t, "A", in[2].RuleID, "input must not be modified")
}

func TestStore_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewStore(dir)

	rs := []ComplianceRule{sampleRule()}
	path, err := s.SaveDocument("SS8_Murabaha", rs)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "generated_SS8_Murabaha_rules.json"), path)

	got, err := LoadFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(rs, got); diff != "" {
		t.Errorf("loaded rules mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  {\n    \"rule_id\"", "indent of two spaces expected")
	assert.Contains(t, string(raw), "own & possess")
	assert.NotContains(t, string(raw), `\u0026`)
}

func TestStore_SaveCombinedEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	path, err := s.SaveCombined(nil)
	require.NoError(t, err)
	assert.Equal(t, CombinedFileName, filepath.Base(path))

	got, err := s.LoadCombined()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrNoRules)
}

func TestLoadFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRules)
}

func TestLoadFile_NormalizesDoubledBraces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	data := `[{"rule_id": "R1", "validation_query_template": "Does '{{clause_text}}' align with '{{rule_description}}'?"}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	rs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "Does '{clause_text}' align with '{rule_description}'?", rs[0].ValidationQueryTemplate)
}
