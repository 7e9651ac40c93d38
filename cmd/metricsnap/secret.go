package main

import (
	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the retained snapshot passphrase",
}

var secretForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Forget the retained passphrase for the tenant",
	Long: `Forget removes the passphrase retained for the current tenant. With
persistent retention this deletes it from the secret store; the next
decryption asks again.`,
	Args: cobra.NoArgs,
	RunE: runSecretForget,
}

var secretCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Acquire the passphrase and report which source supplied it",
	Args:  cobra.NoArgs,
	RunE:  runSecretCheck,
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretForgetCmd)
	secretCmd.AddCommand(secretCheckCmd)
}

func runSecretForget(cmd *cobra.Command, args []string) error {
	if err := apiClient.ForgetSecret(commandContext(cmd)); err != nil {
		report(err)
		return err
	}

	output(map[string]interface{}{"success": true, "tenant": cfg.Tenant.ID}, func() {
		printSuccess("Forgot passphrase for %s", cfg.Tenant.ID)
	})
	return nil
}

func runSecretCheck(cmd *cobra.Command, args []string) error {
	_, origin, ok, err := apiClient.Secrets.AcquireWithOrigin(commandContext(cmd))
	if err != nil {
		report(err)
		return err
	}

	output(map[string]interface{}{"available": ok, "origin": string(origin)}, func() {
		if !ok {
			printWarning("No passphrase available")
			return
		}
		printSuccess("Passphrase available from %s", origin)
	})
	return nil
}
