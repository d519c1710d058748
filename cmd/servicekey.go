package cmd

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/repository"
	"github.com/vibast-solutions/ms-go-phonebook/app/service"

	"github.com/spf13/cobra"
)

var serviceKeyCmd = &cobra.Command{
	Use:   "servicekey",
	Short: "Manage keys that let sibling services resolve users",
}

var serviceKeyGenerateCmd = &cobra.Command{
	Use:   "generate <service_name>",
	Short: "Generate a key for a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyService, db, err := newServiceKeyServiceForCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		serviceName := args[0]
		key, err := keyService.Generate(cmd.Context(), serviceName)
		if err != nil {
			if errors.Is(err, service.ErrServiceHasActiveKey) {
				return fmt.Errorf("service %q already has an active key", serviceName)
			}
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "service_name: %s\n", serviceName)
		fmt.Fprintf(out, "api_key: %s\n", key)
		fmt.Fprintf(out, "expires_at: %s\n", time.Now().AddDate(100, 0, 0).Format(time.RFC3339))
		return nil
	},
}

var serviceKeyDeactivateCmd = &cobra.Command{
	Use:   "deactivate <service_name>",
	Short: "Deactivate all active keys of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyService, db, err := newServiceKeyServiceForCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		serviceName := args[0]
		count, err := keyService.Deactivate(cmd.Context(), serviceName)
		if err != nil {
			if errors.Is(err, service.ErrServiceHasNoActiveKey) {
				return fmt.Errorf("service %q has no active key", serviceName)
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d active key(s) for service %s\n", count, serviceName)
		return nil
	},
}

var serviceKeyRegenerateCmd = &cobra.Command{
	Use:   "regenerate <service_name>",
	Short: "Issue a new key and expire the old ones after a grace period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyService, db, err := newServiceKeyServiceForCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		oldKeyTTL, err := promptOldKeyTTLMinutes(cmd.InOrStdin(), out)
		if err != nil {
			return err
		}

		serviceName := args[0]
		newKey, err := keyService.Regenerate(cmd.Context(), serviceName, oldKeyTTL)
		if err != nil {
			if errors.Is(err, service.ErrServiceHasNoActiveKey) {
				return fmt.Errorf("service %q has no active key", serviceName)
			}
			if errors.Is(err, service.ErrInvalidRegenerationTTL) {
				return errors.New("old key grace period must be greater than 5 minutes")
			}
			return err
		}

		fmt.Fprintf(out, "service_name: %s\n", serviceName)
		fmt.Fprintf(out, "old_key_expires_in_minutes: %d\n", int(oldKeyTTL.Minutes()))
		fmt.Fprintf(out, "new_api_key: %s\n", newKey)
		fmt.Fprintf(out, "new_key_expires_at: %s\n", time.Now().AddDate(100, 0, 0).Format(time.RFC3339))
		return nil
	},
}

func init() {
	serviceKeyCmd.AddCommand(serviceKeyGenerateCmd)
	serviceKeyCmd.AddCommand(serviceKeyDeactivateCmd)
	serviceKeyCmd.AddCommand(serviceKeyRegenerateCmd)
	rootCmd.AddCommand(serviceKeyCmd)
}

func newServiceKeyServiceForCommands(ctx context.Context) (service.ServiceKeyService, *sql.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openDatabaseFromEnv(ctx)
	if err != nil {
		return nil, nil, err
	}

	return service.NewServiceKeyService(repository.NewServiceKeyRepository(db)), db, nil
}

func promptOldKeyTTLMinutes(in io.Reader, out io.Writer) (time.Duration, error) {
	const defaultMinutes = 60
	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "Expire old key in minutes (>5) [%d]: ", defaultMinutes)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Duration(defaultMinutes) * time.Minute, nil
	}

	minutes, err := strconv.Atoi(input)
	if err != nil {
		return 0, errors.New("invalid number of minutes")
	}
	if minutes <= 5 {
		return 0, errors.New("value must be greater than 5 minutes")
	}

	return time.Duration(minutes) * time.Minute, nil
}
