package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_OpportunitiesV3_Valid(t *testing.T) {
	doc := []byte(`{
		"summary": "Two gaps worth attacking.",
		"opportunities": [{
			"title": "Usage-based pricing",
			"rationale": "Every competitor still sells seats.",
			"citations": ["https://a.com/pricing"],
			"scoring": {"breakdown": {"customer_pain": 8}}
		}]
	}`)

	assert.NoError(t, Validate(OpportunitiesV3, doc))
}

func TestValidate_OpportunitiesV3_MissingCitations(t *testing.T) {
	doc := []byte(`{
		"summary": "s",
		"opportunities": [{
			"title": "t",
			"rationale": "r",
			"citations": [],
			"scoring": {"breakdown": {}}
		}]
	}`)

	err := Validate(OpportunitiesV3, doc)
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.NotEmpty(t, ve.Errors)
}

func TestValidate_MalformedJSON(t *testing.T) {
	err := Validate(OpportunitiesV3, []byte(`{"summary": `))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("nope", []byte(`{}`))

	var le *SchemaLoadError
	require.ErrorAs(t, err, &le)
}

func TestValidate_ProfileSnapshot(t *testing.T) {
	valid := []byte(`{"name": "Acme", "positioning": "SMB billing", "strengths": ["brand"]}`)
	assert.NoError(t, Validate(ProfileSnapshot, valid))

	missing := []byte(`{"name": "Acme"}`)
	assert.Error(t, Validate(ProfileSnapshot, missing))
}

func TestValidate_DecisionModel(t *testing.T) {
	doc := []byte(`{
		"projectId": "p1",
		"generatedAt": "2025-08-01T00:00:00Z",
		"summary": "s",
		"opportunities": [{
			"id": "usage-based-pricing-p1",
			"title": "Usage-based pricing",
			"rationale": "r",
			"citations": [{"url": "https://a.com", "evidenceType": "pricing"}],
			"scoring": {"breakdown": {"customer_pain": 8}, "weights": {"customer_pain": 1}, "total": 80}
		}],
		"metadata": {"artifactVersion": "opportunities_v3"}
	}`)

	assert.NoError(t, Validate(DecisionModel, doc))
}

func TestValidate_DecisionModel_RejectsOutOfRangeTotal(t *testing.T) {
	doc := []byte(`{
		"projectId": "p1",
		"generatedAt": "2025-08-01T00:00:00Z",
		"summary": "s",
		"opportunities": [{
			"id": "x-p1",
			"title": "x",
			"rationale": "r",
			"citations": [],
			"scoring": {"breakdown": {}, "weights": {}, "total": 250}
		}],
		"metadata": {"artifactVersion": "opportunities_v3"}
	}`)

	assert.Error(t, Validate(DecisionModel, doc))
}

func TestDescribe(t *testing.T) {
	doc, err := Describe(OpportunitiesV3)
	require.NoError(t, err)
	assert.Contains(t, doc, "opportunities")
}
