package stub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

const manifestSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "tern stub manifest",
  "type": "object",
  "required": ["rules"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string"},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "match", "respond"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "priority": {"type": "integer"},
          "match": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "methods": {"type": "array", "items": {"type": "string"}},
              "url": {"type": "string"},
              "url_mode": {"enum": ["exact", "prefix", "glob"]},
              "body_path": {"type": "string"},
              "body_value": {"type": "string"}
            }
          },
          "respond": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "status_code": {"type": "integer", "minimum": 100, "maximum": 599},
              "headers": {"type": "object", "additionalProperties": {"type": "string"}},
              "body": {"type": "string"},
              "patch": {"type": "object"},
              "delay_ms": {"type": "integer", "minimum": 0}
            }
          }
        }
      }
    }
  }
}`

var manifestSchema = jsonschema.MustCompileString("tern://stub-manifest.schema.json", manifestSchemaJSON)

// Manifest is a declarative set of stub rules loaded from JSON.
type Manifest struct {
	Version string `json:"version,omitempty"`
	Rules   []Rule `json:"rules"`
}

// Rule pairs a request matcher with the stubbed response it produces. When
// several rules match, the highest priority wins; ties go to the first rule
// in manifest order.
type Rule struct {
	Name     string  `json:"name"`
	Priority int     `json:"priority,omitempty"`
	Match    Match   `json:"match"`
	Respond  Respond `json:"respond"`
}

// Match describes the request conditions a rule applies to. Zero-valued
// fields match everything. URL patterns starting with "/" are compared
// against the request path instead of the full URL.
type Match struct {
	Methods   []string `json:"methods,omitempty"`
	URL       string   `json:"url,omitempty"`
	URLMode   string   `json:"url_mode,omitempty"`
	BodyPath  string   `json:"body_path,omitempty"`
	BodyValue string   `json:"body_value,omitempty"`
}

// Respond describes the synthesized response. Body replaces the target
// sample outright; Patch applies path/value overrides on top of it.
type Respond struct {
	StatusCode int               `json:"status_code,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Patch      map[string]any    `json:"patch,omitempty"`
	DelayMS    int               `json:"delay_ms,omitempty"`
}

// Delay returns the per-rule delivery delay.
func (r Respond) Delay() time.Duration { return time.Duration(r.DelayMS) * time.Millisecond }

// ValidateManifestBytes checks raw manifest JSON against the embedded schema.
func ValidateManifestBytes(data []byte) error {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if err := manifestSchema.Validate(payload); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	return nil
}

// ParseManifest validates and decodes a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	if err := ValidateManifestBytes(data); err != nil {
		return nil, err
	}
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// Validate enforces rule invariants beyond the schema shape.
func (m *Manifest) Validate() error {
	seen := map[string]struct{}{}
	for i := range m.Rules {
		r := &m.Rules[i]
		if r.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		switch r.Match.URLMode {
		case "", "exact", "prefix", "glob":
		default:
			return fmt.Errorf("rule %q: unsupported url_mode %q", r.Name, r.Match.URLMode)
		}
		if r.Match.BodyValue != "" && r.Match.BodyPath == "" {
			return fmt.Errorf("rule %q: body_value requires body_path", r.Name)
		}
		if r.Respond.DelayMS < 0 {
			return fmt.Errorf("rule %q: delay_ms must be >=0", r.Name)
		}
	}
	return nil
}

// Match returns the winning rule for ep, or nil when no rule applies.
func (m *Manifest) Match(ep core.Endpoint) *Rule {
	var chosen *Rule
	for i := range m.Rules {
		r := &m.Rules[i]
		if !r.matches(ep) {
			continue
		}
		if chosen == nil || r.Priority > chosen.Priority {
			chosen = r
		}
	}
	return chosen
}

func (r *Rule) matches(ep core.Endpoint) bool {
	if len(r.Match.Methods) > 0 {
		found := false
		for _, m := range r.Match.Methods {
			if strings.EqualFold(ep.Method, m) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.Match.URL != "" && !matchURL(ep.URL, r.Match.URL, r.Match.URLMode) {
		return false
	}
	if r.Match.BodyPath != "" {
		if len(ep.Body) == 0 {
			return false
		}
		if gjson.GetBytes(ep.Body, r.Match.BodyPath).String() != r.Match.BodyValue {
			return false
		}
	}
	return true
}

// matchURL compares against the full URL; patterns starting with "/" compare
// against the URL path only, so rules stay host-independent.
func matchURL(u, pattern, mode string) bool {
	if strings.HasPrefix(pattern, "/") {
		if parsed, err := url.Parse(u); err == nil {
			u = parsed.Path
		}
	}
	switch mode {
	case "exact":
		return u == pattern
	case "prefix":
		return strings.HasPrefix(u, pattern)
	default:
		return glob(u, pattern)
	}
}

// glob matches s against pattern, where each "*" spans any run of
// characters, slashes included.
func glob(s, pattern string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	if !strings.HasSuffix(s, last) {
		return false
	}
	s = s[:len(s)-len(last)]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return true
}

// Render synthesizes the rule's response over the target sample.
func (r *Rule) Render(sample []byte) (*core.Response, error) {
	body := sample
	if r.Respond.Body != "" {
		body = []byte(r.Respond.Body)
	}

	if len(r.Respond.Patch) > 0 {
		if len(body) == 0 {
			body = []byte("{}")
		}
		// Deterministic patch order.
		paths := make([]string, 0, len(r.Respond.Patch))
		for path := range r.Respond.Patch {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		var err error
		for _, path := range paths {
			body, err = sjson.SetBytes(body, path, r.Respond.Patch[path])
			if err != nil {
				return nil, fmt.Errorf("rule %q: patch %s: %w", r.Name, path, err)
			}
		}
	}

	status := r.Respond.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	var headers map[string]string
	if len(r.Respond.Headers) > 0 {
		headers = make(map[string]string, len(r.Respond.Headers))
		for k, v := range r.Respond.Headers {
			headers[k] = v
		}
	}
	return &core.Response{StatusCode: status, Headers: headers, Body: body}, nil
}
