package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/drblury/asyncflow/internal/runtime/binding"
	configpkg "github.com/drblury/asyncflow/internal/runtime/config"
	"github.com/drblury/asyncflow/internal/runtime/disambiguation"
	"github.com/drblury/asyncflow/internal/runtime/document"
	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
	"github.com/drblury/asyncflow/internal/runtime/operation"
	"github.com/drblury/asyncflow/internal/runtime/reference"
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

func newValidateCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that every operation of the document resolves",
		Long: `Validate the AsyncAPI document and the asyncflow configuration.

Checks, per operation:
  - The operation channel and its server resolve
  - Every message reference resolves with its traits
  - The bindings of the server protocol resolve
  - A registered protocol handler serves the server protocol

Examples:
  asyncflowctl validate -d asyncapi.yaml
  asyncflowctl validate -d asyncapi.yaml -c asyncflow.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), global)
		},
	}
}

func runValidate(out io.Writer, global *globalOptions) error {
	fmt.Fprintf(out, "Validating %s...\n\n", global.documentPath)

	doc, conf, err := global.load()
	if err != nil {
		fmt.Fprintf(out, "  %s Document and config load\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Document and config load (AsyncAPI %s)\n", checkMark, doc.AsyncAPI)

	if err := conf.Validate(); err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	refs := reference.New(doc)
	v := &validator{
		conf:       conf,
		operations: operation.New(refs),
		bindings:   binding.New(refs),
		selector:   disambiguation.New(refs, nil, nil),
	}

	ids := v.operations.IDs()
	var errs []error
	for _, id := range ids {
		summary, err := v.check(id)
		if err != nil {
			fmt.Fprintf(out, "  %s %s\n      Error: %v\n", crossMark, id, err)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		fmt.Fprintf(out, "  %s %s\n", checkMark, summary)
	}

	fmt.Fprintln(out)
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d operations failed: %w", len(errs), len(ids), errors.Join(errs...))
	}
	fmt.Fprintf(out, "All %d operations resolve.\n", len(ids))
	return nil
}

type validator struct {
	conf       *configpkg.Config
	operations *operation.Resolver
	bindings   *binding.Resolver
	selector   *disambiguation.Selector
}

// check resolves id with the verb its action allows and returns a one-line
// summary.
func (v *validator) check(id string) (string, error) {
	verb := operation.VerbPublish
	resolved, err := v.operations.Resolve(id, verb)
	if errors.Is(err, rterrors.ErrActionMismatch) {
		verb = operation.VerbSubscribe
		resolved, err = v.operations.Resolve(id, verb)
	}
	if err != nil {
		return "", err
	}

	serverName, server, err := v.operations.ResolveServer(resolved.Channel, v.conf.DefaultServer)
	if err != nil && v.conf.DefaultServer != "" {
		serverName, server, err = v.operations.ResolveServer(resolved.Channel, "")
	}
	if err != nil {
		return "", err
	}

	candidates, err := v.selector.Candidates(resolved)
	if err != nil {
		return "", err
	}
	messages := []*document.Message{nil}
	if len(candidates) > 0 {
		messages = messages[:0]
		for _, c := range candidates {
			messages = append(messages, c.Message)
		}
	}
	for _, msg := range messages {
		if _, err := v.bindings.ResolveSet(server.Protocol, server, resolved.Channel, resolved.Operation, msg); err != nil {
			return "", err
		}
	}

	protocol := v.conf.HandlerProtocol(server.Protocol)
	handler := handlerName(protocol, server.ProtocolVersion)
	if handler == "none" {
		return "", fmt.Errorf("no protocol handler serves %q", protocol)
	}
	return fmt.Sprintf("%s (%s via %s on %s, %d message(s), channel %s)",
		id, verb, handler, serverName, len(candidates), resolved.Channel.AddressTemplate()), nil
}
