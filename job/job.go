// Package job implements the SDK's Job and Parameter data model: parsing an
// order's JSON body into a typed, immutable Job, resolving credential
// parameters eagerly at parse time, and giving handlers typed access to
// parameter values.
package job

import (
	"encoding/json"
	"fmt"
)

// CredentialResolver fetches the secret value behind a credential
// parameter. Implementations must never log the returned value.
type CredentialResolver interface {
	Resolve(key, store string) (string, error)
}

// Job is a unit of work identified by job_id, carrying an ordered,
// immutable list of Parameters. Construct one with Parse.
type Job struct {
	JobID      uint64
	Parameters []Parameter
}

type wireParameter struct {
	ID    string          `json:"id"`
	Type  ParameterType   `json:"type"`
	Store string          `json:"store"`
	Value json.RawMessage `json:"value"`
}

type wireJob struct {
	JobID      uint64          `json:"job_id"`
	Parameters []wireParameter `json:"parameters"`
}

// Parse decodes a broker/file order body `{"job_id": N, "parameters": [...]}`
// into a Job. Credential parameters are resolved immediately via resolver;
// a resolution failure surfaces as a KindRequirements error, matching the
// original SDK's eager-resolution semantics (see design notes on the
// credential expansion site).
func Parse(data []byte, resolver CredentialResolver) (*Job, error) {
	var wire wireJob
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, NewParseError("malformed order JSON", err)
	}

	j := &Job{JobID: wire.JobID, Parameters: make([]Parameter, 0, len(wire.Parameters))}

	for _, wp := range wire.Parameters {
		param, err := decodeParameter(wire.JobID, wp, resolver)
		if err != nil {
			return nil, err
		}
		j.Parameters = append(j.Parameters, param)
	}

	return j, nil
}

func decodeParameter(jobID uint64, wp wireParameter, resolver CredentialResolver) (Parameter, error) {
	p := Parameter{ID: wp.ID, Type: wp.Type, Store: wp.Store}

	switch wp.Type {
	case TypeString:
		var v string
		if err := json.Unmarshal(wp.Value, &v); err != nil {
			return Parameter{}, NewParseError(fmt.Sprintf("parameter %q: expected string value", wp.ID), err)
		}
		p.Value = v

	case TypeInteger:
		var v int64
		if err := json.Unmarshal(wp.Value, &v); err != nil {
			return Parameter{}, NewParseError(fmt.Sprintf("parameter %q: expected integer value", wp.ID), err)
		}
		p.Value = v

	case TypeBoolean:
		var v bool
		if err := json.Unmarshal(wp.Value, &v); err != nil {
			return Parameter{}, NewParseError(fmt.Sprintf("parameter %q: expected boolean value", wp.ID), err)
		}
		p.Value = v

	case TypeArrayOfStrings:
		var v []string
		if err := json.Unmarshal(wp.Value, &v); err != nil {
			return Parameter{}, NewParseError(fmt.Sprintf("parameter %q: expected array of strings", wp.ID), err)
		}
		p.Value = v

	case TypeArrayOfIntegers:
		var v []int64
		if err := json.Unmarshal(wp.Value, &v); err != nil {
			return Parameter{}, NewParseError(fmt.Sprintf("parameter %q: expected array of integers", wp.ID), err)
		}
		p.Value = v

	case TypeRequirements:
		var v Requirements
		if err := json.Unmarshal(wp.Value, &v); err != nil {
			return Parameter{}, NewParseError(fmt.Sprintf("parameter %q: expected requirements object", wp.ID), err)
		}
		p.Value = v

	case TypeCredential:
		var key string
		if err := json.Unmarshal(wp.Value, &key); err != nil {
			return Parameter{}, NewParseError(fmt.Sprintf("parameter %q: expected credential key string", wp.ID), err)
		}
		if resolver == nil {
			return Parameter{}, NewRequirementsError(jobID, fmt.Sprintf("parameter %q: no credential resolver configured", wp.ID))
		}
		secret, err := resolver.Resolve(key, wp.Store)
		if err != nil {
			return Parameter{}, NewRequirementsError(jobID, fmt.Sprintf("parameter %q: credential resolution failed: %v", wp.ID, err))
		}
		p.Value = secret

	default:
		return Parameter{}, NewParseError(fmt.Sprintf("parameter %q: unknown type %q", wp.ID, wp.Type), nil)
	}

	return p, nil
}

func (j *Job) find(id string) (Parameter, bool) {
	for _, p := range j.Parameters {
		if p.ID == id {
			return p, true
		}
	}
	return Parameter{}, false
}

// StringParam returns the named string parameter, if present and typed
// correctly.
func (j *Job) StringParam(id string) (string, bool) {
	p, ok := j.find(id)
	if !ok {
		return "", false
	}
	v, ok := p.Value.(string)
	return v, ok
}

// IntParam returns the named integer parameter, if present and typed
// correctly.
func (j *Job) IntParam(id string) (int64, bool) {
	p, ok := j.find(id)
	if !ok {
		return 0, false
	}
	v, ok := p.Value.(int64)
	return v, ok
}

// BoolParam returns the named boolean parameter, if present and typed
// correctly.
func (j *Job) BoolParam(id string) (bool, bool) {
	p, ok := j.find(id)
	if !ok {
		return false, false
	}
	v, ok := p.Value.(bool)
	return v, ok
}

// StringArrayParam returns the named array-of-strings parameter.
func (j *Job) StringArrayParam(id string) ([]string, bool) {
	p, ok := j.find(id)
	if !ok {
		return nil, false
	}
	v, ok := p.Value.([]string)
	return v, ok
}

// IntArrayParam returns the named array-of-integers parameter.
func (j *Job) IntArrayParam(id string) ([]int64, bool) {
	p, ok := j.find(id)
	if !ok {
		return nil, false
	}
	v, ok := p.Value.([]int64)
	return v, ok
}

// CredentialParam returns the resolved secret behind a credential
// parameter. The key never appears in the return value; callers must not
// log it either.
func (j *Job) CredentialParam(id string) (string, bool) {
	p, ok := j.find(id)
	if !ok || p.Type != TypeCredential {
		return "", false
	}
	v, ok := p.Value.(string)
	return v, ok
}

// Requirements returns the job's requirements parameter, if any.
func (j *Job) Requirements() (Requirements, bool) {
	p, ok := j.find("requirements")
	if !ok {
		return Requirements{}, false
	}
	v, ok := p.Value.(Requirements)
	return v, ok
}

// CheckRequirements verifies every path named in the job's requirements
// parameter exists, returning a KindRequirements error naming the first
// missing path.
func (j *Job) CheckRequirements(exists func(path string) bool) error {
	reqs, ok := j.Requirements()
	if !ok {
		return nil
	}
	for _, path := range reqs.Paths {
		if !exists(path) {
			return NewRequirementsError(j.JobID, fmt.Sprintf("required path does not exist: %s", path))
		}
	}
	return nil
}
