package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	groupUsecase "github.com/allisson/strongroom/internal/group/usecase"
)

// groupInfoOutput is the rendered form of a group's observed state.
type groupInfoOutput struct {
	Group          string           `json:"group"`
	StoreKind      string           `json:"store_kind,omitempty"`
	StoreARN       string           `json:"store_arn,omitempty"`
	KeyARN         string           `json:"key_arn,omitempty"`
	AdminPolicy    policyInfoOutput `json:"admin_policy"`
	ReadOnlyPolicy policyInfoOutput `json:"readonly_policy"`
}

type policyInfoOutput struct {
	Exists        bool     `json:"exists"`
	AttachedUsers []string `json:"attached_users,omitempty"`
}

func renderGroupInfo(info *groupUsecase.GroupInfo) groupInfoOutput {
	return groupInfoOutput{
		Group:          info.Group.String(),
		StoreKind:      string(info.StoreKind),
		StoreARN:       info.StoreARN,
		KeyARN:         info.KeyARN,
		AdminPolicy:    policyInfoOutput{Exists: info.AdminPolicy.Exists, AttachedUsers: info.AdminPolicy.AttachedUsers},
		ReadOnlyPolicy: policyInfoOutput{Exists: info.ReadOnlyPolicy.Exists, AttachedUsers: info.ReadOnlyPolicy.AttachedUsers},
	}
}

// writeGroupInfo outputs the group state in the requested format.
func writeGroupInfo(out io.Writer, info *groupUsecase.GroupInfo, format string) error {
	rendered := renderGroupInfo(info)
	if format == "json" {
		return printJSON(out, rendered)
	}

	fmt.Fprintf(out, "Group: %s\n", rendered.Group)
	if rendered.StoreARN != "" {
		fmt.Fprintf(out, "Store: %s (%s)\n", rendered.StoreARN, rendered.StoreKind)
	} else {
		fmt.Fprintln(out, "Store: absent")
	}
	if rendered.KeyARN != "" {
		fmt.Fprintf(out, "Key: %s\n", rendered.KeyARN)
	} else {
		fmt.Fprintln(out, "Key: absent")
	}
	writePolicyInfo(out, "Admin policy", rendered.AdminPolicy)
	writePolicyInfo(out, "Readonly policy", rendered.ReadOnlyPolicy)
	return nil
}

func writePolicyInfo(out io.Writer, label string, info policyInfoOutput) {
	if !info.Exists {
		fmt.Fprintf(out, "%s: absent\n", label)
		return
	}
	if len(info.AttachedUsers) == 0 {
		fmt.Fprintf(out, "%s: present, no attached users\n", label)
		return
	}
	fmt.Fprintf(out, "%s: present, attached users: %s\n", label, strings.Join(info.AttachedUsers, ", "))
}

// RunGroupInfo probes the group's sub-resources and prints the observed state.
// Absent sub-resources are reported, not treated as errors.
func RunGroupInfo(
	ctx context.Context,
	manager groupUsecase.GroupManager,
	logger *slog.Logger,
	out io.Writer,
	format string,
) error {
	info, err := manager.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe group: %w", err)
	}

	logger.Info("group info",
		slog.String("group", info.Group.String()),
		slog.String("store_kind", string(info.StoreKind)),
	)

	return writeGroupInfo(out, info, format)
}
