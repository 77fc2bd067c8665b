package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	xerrors "xconnect/internal/errors"
	"xconnect/internal/topology"
	"xconnect/internal/vendors"
)

// validate is shared; validator caches struct metadata per instance.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report the YAML key rather than the Go field name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the config for contradictions and missing required
// values.  It returns the first problem as a *ConfigError with a hint
// where one helps.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return &xerrors.ConfigError{
			Field:   "backends",
			Message: "no backends configured",
			Hint:    "add a backends: section to the config file, see --help",
		}
	}
	if err := validate.Struct(c); err != nil {
		return fieldError(err)
	}
	for _, name := range c.Networks() {
		if err := c.Backends[name].check(name); err != nil {
			return err
		}
	}
	return nil
}

// check covers the rules that span fields.
func (b *Backend) check(network string) error {
	field := func(f string) string { return fmt.Sprintf("backends[%s].%s", network, f) }

	if b.Transport == "tcp" && b.Vendor != "ciena" {
		return &xerrors.ConfigError{
			Field: field("transport"), Value: b.Transport,
			Message: b.Vendor + " is only reachable over ssh",
			Hint:    "raw tcp is for TL1 gateways; drop transport or set it to ssh",
		}
	}
	if b.Transport == "tcp" && (b.KeyPath != "" || b.UseAgent) {
		return &xerrors.ConfigError{
			Field: field("transport"), Value: b.Transport,
			Message: "key_path and use_agent need ssh",
		}
	}

	seen := make(map[string]bool, len(b.Ports))
	for i, p := range b.Ports {
		pf := func(f string) string { return field(fmt.Sprintf("ports[%d].%s", i, f)) }
		if seen[p.Name] {
			return &xerrors.ConfigError{Field: pf("name"), Value: p.Name, Message: "duplicate port name"}
		}
		seen[p.Name] = true

		if _, err := p.label(); err != nil {
			return &xerrors.ConfigError{
				Field: pf("range"), Value: p.Range, Message: err.Error(),
				Hint: `use a single value, a range or a list, e.g. "100-200,300"`,
			}
		}
		if p.Label == string(topology.LabelMPLS) {
			if p.RemoteNetwork == "" {
				return &xerrors.ConfigError{
					Field: pf("remote_network"), Message: "an mpls port must face a peer network",
				}
			}
			if _, ok := b.Routers[p.RemoteNetwork]; !ok {
				return &xerrors.ConfigError{
					Field: field("routers"), Value: p.RemoteNetwork,
					Message: fmt.Sprintf("no router loopback for network %q used by port %q", p.RemoteNetwork, p.Name),
					Hint:    fmt.Sprintf("add routers: {%s: <loopback ip>}", p.RemoteNetwork),
				}
			}
		}
	}

	if b.PromptPassword && b.Password != "" {
		return &xerrors.ConfigError{
			Field: field("prompt_password"), Value: true,
			Message: "password is already set",
			Hint:    fmt.Sprintf("unset XCONNECT_%s_PASSWORD or drop prompt_password", EnvName(network)),
		}
	}
	return nil
}

// label converts the file's label and range into a port restriction.
// A typed port without a range accepts any legal value of that type.
func (p PortSpec) label() (*topology.Label, error) {
	lt, err := topology.ParseLabelType(p.Label)
	if err != nil {
		return nil, err
	}
	if lt == topology.LabelPort {
		if p.Range != "" {
			return nil, fmt.Errorf("range %q given for a whole-port interface", p.Range)
		}
		return nil, nil
	}
	if p.Range == "" {
		return &topology.Label{Type: lt}, nil
	}
	return topology.ParseLabel(lt, p.Range)
}

// Topology builds the backend's port map.
func (b *Backend) Topology() (*topology.Topology, error) {
	ports := make([]topology.Port, 0, len(b.Ports))
	for _, p := range b.Ports {
		l, err := p.label()
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", p.Name, err)
		}
		ports = append(ports, topology.Port{
			Name:          p.Name,
			Interface:     p.Interface,
			Label:         l,
			RemoteNetwork: p.RemoteNetwork,
			RemotePort:    p.RemotePort,
		})
	}
	return topology.NewTopology(ports)
}

// Profile instantiates the backend's vendor profile for network.
func (b *Backend) Profile(network string) (vendor.Profile, error) {
	return vendor.New(b.Vendor, vendor.Options{
		Network:     network,
		Routers:     b.Routers,
		VCIDPrefix:  b.VCIDPrefix,
		EnableQoS:   b.EnableQoS,
		Description: b.Description,
	})
}

// fieldError turns the first validator failure into a ConfigError.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &xerrors.ConfigError{Field: "config", Message: err.Error()}
	}
	fe := verrs[0]
	ce := &xerrors.ConfigError{
		Field:   strings.TrimPrefix(fe.Namespace(), "Config."),
		Message: describe(fe),
	}
	if v := fe.Value(); !isZero(v) {
		ce.Value = v
	}
	switch fe.Field() {
	case "vendor":
		ce.Hint = "ciena, junosex or junosmx"
	case "log_format":
		ce.Hint = "console or json"
	case "remote_port":
		ce.Hint = "name the port on the peer network this interface reaches"
	}
	return ce
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return "is required when " + strings.ToLower(fe.Param()) + " is set"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "needs at least " + fe.Param() + " entries"
	case "gt", "gte", "lte":
		return fmt.Sprintf("out of range (%s %s)", fe.Tag(), fe.Param())
	case "excludes":
		return fmt.Sprintf("must not contain %q", fe.Param())
	case "hostname_port":
		return "must be host:port"
	default:
		return "fails " + fe.Tag()
	}
}

func isZero(v interface{}) bool {
	return v == nil || reflect.ValueOf(v).IsZero()
}
