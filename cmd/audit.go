package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ziadkadry99/perfreview/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries, newest first",
	RunE:  runAuditList,
}

var auditShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single audit entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditShow,
}

func init() {
	auditListCmd.Flags().String("resource-type", "", "filter by resource type (e.g. users, reviews)")
	auditListCmd.Flags().String("resource-id", "", "filter by resource id")
	auditListCmd.Flags().String("user", "", "filter by acting user id")
	auditListCmd.Flags().Int("limit", 20, "maximum number of entries")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditShowCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditList(cmd *cobra.Command, args []string) error {
	_, logger, database, err := openRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer database.Close()

	resourceType, _ := cmd.Flags().GetString("resource-type")
	resourceID, _ := cmd.Flags().GetString("resource-id")
	user, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")

	entries, err := audit.NewStore(database).Query(context.Background(), audit.QueryFilter{
		UserID:       user,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Limit:        limit,
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "No audit entries found.")
		return nil
	}
	return printYAML(entries)
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	_, logger, database, err := openRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer database.Close()

	entry, err := audit.NewStore(database).GetByID(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("audit entry %s: %w", args[0], err)
	}
	return printYAML(entry)
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}
