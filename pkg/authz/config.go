package authz

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/client-go/kubernetes"
)

// AuthzMode selects the authorization backend.
type AuthzMode string

const (
	// AuthzModeNone disables authorization checks.
	AuthzModeNone AuthzMode = "none"
	// AuthzModeStatic grants verbs to groups from a policy file.
	AuthzModeStatic AuthzMode = "static"
	// AuthzModeSAR asks the Kubernetes API server via SubjectAccessReview.
	AuthzModeSAR AuthzMode = "sar"
)

// Options configures NewAuthorizer. PolicyPath is read in static mode;
// Client, Namespace and DecisionTTL apply in sar mode.
type Options struct {
	PolicyPath  string
	Client      kubernetes.Interface
	Namespace   string
	DecisionTTL time.Duration
}

// Grant gives a group a set of verbs on a resource. "*" matches any verb.
type Grant struct {
	Group    string   `yaml:"group"`
	Resource string   `yaml:"resource"`
	Verbs    []string `yaml:"verbs"`
}

// Policy is the on-disk shape of a static authorization policy.
type Policy struct {
	Grants []Grant `yaml:"grants"`
}

// LoadPolicy reads a static policy from a YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authz policy %s: %w", path, err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse authz policy %s: %w", path, err)
	}
	for i, g := range p.Grants {
		if g.Group == "" || g.Resource == "" || len(g.Verbs) == 0 {
			return nil, fmt.Errorf("authz policy %s: grant %d needs group, resource and verbs", path, i)
		}
	}
	return &p, nil
}

// NewAuthorizer builds the authorizer for mode.
func NewAuthorizer(mode AuthzMode, opts Options) (Authorizer, error) {
	switch mode {
	case "", AuthzModeNone:
		return AllowAll{}, nil
	case AuthzModeStatic:
		if opts.PolicyPath == "" {
			return nil, fmt.Errorf("authz mode %q requires a policy file", mode)
		}
		p, err := LoadPolicy(opts.PolicyPath)
		if err != nil {
			return nil, err
		}
		return NewStaticAuthorizer(*p), nil
	case AuthzModeSAR:
		if opts.Client == nil {
			return nil, fmt.Errorf("authz mode %q requires a kubernetes client", mode)
		}
		return NewCachedAuthorizer(NewSARAuthorizer(opts.Client, opts.Namespace), opts.DecisionTTL), nil
	default:
		return nil, fmt.Errorf("unsupported authz mode %q (supported: none, static, sar)", mode)
	}
}
