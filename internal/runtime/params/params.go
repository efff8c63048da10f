// Package params resolves channel address parameters and server variables.
// Resolution never fails: a value that cannot be resolved is dropped with a
// warning and its "{name}" placeholder stays in the output.
package params

import (
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/drblury/asyncflow/internal/runtime/document"
	"github.com/drblury/asyncflow/internal/runtime/expression"
	"github.com/drblury/asyncflow/internal/runtime/logging"
	"github.com/drblury/asyncflow/internal/runtime/reference"
)

// Interpolator resolves parameter and variable values.
type Interpolator struct {
	resolver *reference.Resolver
	logger   logging.ServiceLogger
}

// New returns an Interpolator. A nil logger discards warnings.
func New(resolver *reference.Resolver, logger logging.ServiceLogger) *Interpolator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Interpolator{resolver: resolver, logger: logger}
}

// ChannelAddress returns the channel address with every resolvable parameter
// substituted, along with the values that were used. A parameter with a
// location expression takes its value from the message and falls back to its
// default when the expression yields no value.
func (i *Interpolator) ChannelAddress(ch *document.Channel, payload any, headers map[string]any) (string, map[string]string) {
	template := ch.AddressTemplate()
	values := make(map[string]string, len(ch.Parameters))
	if template == "" {
		return "", values
	}

	for _, name := range sortedKeys(ch.Parameters) {
		value, ok := i.parameterValue(name, ch.Parameters[name], payload, headers)
		if ok {
			values[name] = value
		}
	}

	address := Interpolate(template, values)
	i.warnUndeclared(ch, template, address)
	return address, values
}

// AssignedAddress returns the channel address with parameters taken from the
// caller's assignments, falling back to each parameter's default. It serves
// subscriptions, which have no message to evaluate locations against.
func (i *Interpolator) AssignedAddress(ch *document.Channel, assignments map[string]string) (string, map[string]string) {
	template := ch.AddressTemplate()
	values := make(map[string]string, len(ch.Parameters))
	if template == "" {
		return "", values
	}

	for _, name := range sortedKeys(ch.Parameters) {
		fields := logging.LogFields{"parameter": name}
		p, ok := i.definition(ch.Parameters[name], fields)
		if !ok {
			continue
		}
		value, assigned := assignments[name]
		if !assigned || strings.TrimSpace(value) == "" {
			value = p.Default
		}
		if v, ok := i.accept("Dropping channel parameter", value, p.Enum, fields); ok {
			values[name] = v
		}
	}

	address := Interpolate(template, values)
	i.warnUndeclared(ch, template, address)
	return address, values
}

func (i *Interpolator) warnUndeclared(ch *document.Channel, template, address string) {
	for _, name := range Placeholders(address) {
		if _, declared := ch.Parameters[name]; !declared {
			i.logger.Warn("Channel address placeholder has no parameter definition", logging.LogFields{
				"address":   template,
				"parameter": name,
			})
		}
	}
}

// Parameters returns the resolved parameter values without building the
// address.
func (i *Interpolator) Parameters(ch *document.Channel, payload any, headers map[string]any) map[string]string {
	_, values := i.ChannelAddress(ch, payload, headers)
	return values
}

func (i *Interpolator) parameterValue(name string, p *document.Parameter, payload any, headers map[string]any) (string, bool) {
	fields := logging.LogFields{"parameter": name}
	p, ok := i.definition(p, fields)
	if !ok {
		return "", false
	}

	value, found := "", false
	if p.Location != "" {
		v, ok, err := expression.Evaluate(p.Location, payload, headers)
		if err != nil {
			fields["location"] = p.Location
			fields["error"] = err.Error()
			i.logger.Warn("Channel parameter location cannot be evaluated", fields)
		}
		value, found = v, ok
	}
	if !found {
		value = p.Default
	}
	return i.accept("Dropping channel parameter", value, p.Enum, fields)
}

// Server returns the server host and pathname with variables substituted.
// Precedence per variable: caller assignment, declared default, first
// enumerated value.
func (i *Interpolator) Server(server *document.Server, assignments map[string]string) (host, path string) {
	if server == nil {
		return "", ""
	}
	values := i.ServerVariables(server, assignments)
	return Interpolate(server.Host, values), Interpolate(server.Pathname, values)
}

// ServerVariables returns the resolved variable values of server.
func (i *Interpolator) ServerVariables(server *document.Server, assignments map[string]string) map[string]string {
	values := make(map[string]string, len(server.Variables))
	for _, name := range sortedKeys(server.Variables) {
		fields := logging.LogFields{"variable": name, "server": server.Host}
		variable := server.Variables[name]
		if variable != nil && variable.Ref != "" {
			resolved, err := i.resolver.ServerVariable(variable.Ref)
			if err != nil {
				fields["error"] = err.Error()
				i.logger.Warn("Dropping server variable with dangling reference", fields)
				continue
			}
			variable = resolved
		}

		value, assigned := assignments[name]
		if !assigned || strings.TrimSpace(value) == "" {
			value = ""
			if variable != nil {
				value = variable.Default
				if value == "" && len(variable.Enum) > 0 {
					value = variable.Enum[0]
				}
			}
		}
		var enum []string
		if variable != nil {
			enum = variable.Enum
		}
		if v, ok := i.accept("Dropping server variable", value, enum, fields); ok {
			values[name] = v
		}
	}
	return values
}

// definition dereferences p. Missing or dangling definitions are dropped with
// a warning.
func (i *Interpolator) definition(p *document.Parameter, fields logging.LogFields) (*document.Parameter, bool) {
	if p != nil && p.Ref != "" {
		resolved, err := i.resolver.Parameter(p.Ref)
		if err != nil {
			fields["error"] = err.Error()
			i.logger.Warn("Dropping channel parameter with dangling reference", fields)
			return nil, false
		}
		p = resolved
	}
	if p == nil {
		i.logger.Warn("Dropping channel parameter without definition", fields)
		return nil, false
	}
	return p, true
}

func (i *Interpolator) accept(msg, value string, enum []string, fields logging.LogFields) (string, bool) {
	if strings.TrimSpace(value) == "" {
		fields["reason"] = "no value"
		i.logger.Warn(msg, fields)
		return "", false
	}
	if len(enum) > 0 && !slices.Contains(enum, value) {
		fields["reason"] = "value not in enum"
		fields["value"] = value
		i.logger.Warn(msg, fields)
		return "", false
	}
	return value, true
}

// Interpolate replaces every "{name}" token of template whose name has a value.
// Unknown tokens are kept as they are. Substituted values are not rescanned.
func Interpolate(template string, values map[string]string) string {
	if len(values) == 0 || !strings.Contains(template, "{") {
		return template
	}
	var b strings.Builder
	rest := template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			break
		}
		end += start
		b.WriteString(rest[:start])
		if v, ok := values[rest[start+1:end]]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
	b.WriteString(rest)
	return b.String()
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Placeholders returns the token names of template in order of appearance.
func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Extract recovers the parameter values of a concrete address produced from
// template. It reports false when address does not match template.
func Extract(template, address string) (map[string]string, bool) {
	var pattern strings.Builder
	pattern.WriteString("^")
	var names []string
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(template, -1) {
		pattern.WriteString(regexp.QuoteMeta(template[last:loc[0]]))
		pattern.WriteString("(.+?)")
		names = append(names, template[loc[2]:loc[3]])
		last = loc[1]
	}
	pattern.WriteString(regexp.QuoteMeta(template[last:]))
	pattern.WriteString("$")

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, false
	}
	match := re.FindStringSubmatch(address)
	if match == nil {
		return nil, false
	}
	values := make(map[string]string, len(names))
	for idx, name := range names {
		if _, seen := values[name]; !seen {
			values[name] = match[idx+1]
		}
	}
	return values, true
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
