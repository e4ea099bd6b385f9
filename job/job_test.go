package job

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	values map[string]string
	err    error
}

func (s *stubResolver) Resolve(key, store string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.values[key], nil
}

func TestParse_EmptyParameterList(t *testing.T) {
	j, err := Parse([]byte(`{"job_id": 1, "parameters": []}`), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), j.JobID)
	assert.Empty(t, j.Parameters)
}

func TestParse_TypedParameters(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, j *Job)
	}{
		{
			name: "string",
			body: `{"job_id":1,"parameters":[{"id":"name","type":"string","value":"clip.mp4"}]}`,
			check: func(t *testing.T, j *Job) {
				v, ok := j.StringParam("name")
				require.True(t, ok)
				assert.Equal(t, "clip.mp4", v)
			},
		},
		{
			name: "integer",
			body: `{"job_id":1,"parameters":[{"id":"width","type":"integer","value":1920}]}`,
			check: func(t *testing.T, j *Job) {
				v, ok := j.IntParam("width")
				require.True(t, ok)
				assert.Equal(t, int64(1920), v)
			},
		},
		{
			name: "boolean",
			body: `{"job_id":1,"parameters":[{"id":"dry_run","type":"boolean","value":true}]}`,
			check: func(t *testing.T, j *Job) {
				v, ok := j.BoolParam("dry_run")
				require.True(t, ok)
				assert.True(t, v)
			},
		},
		{
			name: "array_of_strings",
			body: `{"job_id":1,"parameters":[{"id":"tags","type":"array_of_strings","value":["a","b"]}]}`,
			check: func(t *testing.T, j *Job) {
				v, ok := j.StringArrayParam("tags")
				require.True(t, ok)
				assert.Equal(t, []string{"a", "b"}, v)
			},
		},
		{
			name: "array_of_integers",
			body: `{"job_id":1,"parameters":[{"id":"offsets","type":"array_of_integers","value":[1,2,3]}]}`,
			check: func(t *testing.T, j *Job) {
				v, ok := j.IntArrayParam("offsets")
				require.True(t, ok)
				assert.Equal(t, []int64{1, 2, 3}, v)
			},
		},
		{
			name: "requirements",
			body: `{"job_id":1,"parameters":[{"id":"requirements","type":"requirements","value":{"paths":["/tmp"]}}]}`,
			check: func(t *testing.T, j *Job) {
				reqs, ok := j.Requirements()
				require.True(t, ok)
				assert.Equal(t, []string{"/tmp"}, reqs.Paths)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := Parse([]byte(tt.body), nil)
			require.NoError(t, err)
			tt.check(t, j)
		})
	}
}

func TestParse_CredentialResolvedEagerly(t *testing.T) {
	resolver := &stubResolver{values: map[string]string{"api_key": "super-secret"}}
	body := `{"job_id":1,"parameters":[{"id":"key","type":"credential","store":"vault","value":"api_key"}]}`

	j, err := Parse([]byte(body), resolver)
	require.NoError(t, err)

	v, ok := j.CredentialParam("key")
	require.True(t, ok)
	assert.Equal(t, "super-secret", v)
}

func TestParse_CredentialResolutionFailureIsRequirementsError(t *testing.T) {
	resolver := &stubResolver{err: fmt.Errorf("backend unreachable")}
	body := `{"job_id":1,"parameters":[{"id":"key","type":"credential","value":"api_key"}]}`

	_, err := Parse([]byte(body), resolver)
	require.Error(t, err)

	var jerr *Error
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, KindRequirements, jerr.Kind)
}

func TestParse_MalformedJSONIsParseError(t *testing.T) {
	_, err := Parse([]byte(`not json`), nil)
	require.Error(t, err)

	var jerr *Error
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, KindParse, jerr.Kind)
}

func TestParse_TypeMismatchIsParseErrorNotPanic(t *testing.T) {
	body := `{"job_id":1,"parameters":[{"id":"width","type":"integer","value":"not-a-number"}]}`
	assert.NotPanics(t, func() {
		_, err := Parse([]byte(body), nil)
		require.Error(t, err)
		var jerr *Error
		require.ErrorAs(t, err, &jerr)
		assert.Equal(t, KindParse, jerr.Kind)
	})
}

func TestJob_CheckRequirements(t *testing.T) {
	j, err := Parse([]byte(`{"job_id":1,"parameters":[{"id":"requirements","type":"requirements","value":{"paths":["/does/not/exist"]}}]}`), nil)
	require.NoError(t, err)

	err = j.CheckRequirements(func(path string) bool { return false })
	require.Error(t, err)
	var jerr *Error
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, KindRequirements, jerr.Kind)
	assert.True(t, jerr.Requeue())

	err = j.CheckRequirements(func(path string) bool { return true })
	assert.NoError(t, err)
}

func TestJob_MissingParameterLookupsReturnFalse(t *testing.T) {
	j, err := Parse([]byte(`{"job_id":1,"parameters":[]}`), nil)
	require.NoError(t, err)

	_, ok := j.StringParam("missing")
	assert.False(t, ok)
	_, ok = j.IntParam("missing")
	assert.False(t, ok)
	_, ok = j.Requirements()
	assert.False(t, ok)
}
