package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heartlink/heartlink/internal/daemon"
	"github.com/heartlink/heartlink/internal/domain"
	"github.com/heartlink/heartlink/internal/infra/sqlite"
	"github.com/heartlink/heartlink/internal/infra/token"
)

// ─── Account CLI ────────────────────────────────────────────────────────────
// Operator commands against the local database: create accounts, grant
// credits, link partners, mint access tokens. These open the same sqlite
// store the daemon uses; WAL mode keeps brief concurrent access safe.

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountCreditCmd)
	accountCmd.AddCommand(accountPairCmd)
	accountCmd.AddCommand(accountTokenCmd)

	accountCreateCmd.Flags().Int64("credits", 0, "Initial credit grant")
	accountCreateCmd.Flags().String("type", "", "Personality type name from the quiz report")
	accountCreateCmd.Flags().Int("pace", 3, "Pace dimension score (1-5)")
	accountCreateCmd.Flags().Int("social", 3, "Social dimension score (1-5)")
	accountCreateCmd.Flags().Int("taste", 3, "Taste dimension score (1-5)")
	accountCreateCmd.Flags().Int("values", 3, "Values dimension score (1-5)")
	accountCreateCmd.Flags().Int("attachment", 3, "Attachment dimension score (1-5)")
	accountCreditCmd.Flags().String("reason", "operator grant", "Ledger reason for the grant")
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage HeartLink accounts",
	Long:  `Create and inspect accounts, grant credits, link partners, and mint access tokens.`,
}

// openStore opens the daemon's database with the daemon's configuration.
func openStore() (*sqlite.DB, daemon.Config, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, cfg, fmt.Errorf("load config: %w", err)
	}
	db, err := sqlite.Open(cfg.Database.Dir)
	if err != nil {
		return nil, cfg, fmt.Errorf("open database: %w", err)
	}
	return db, cfg, nil
}

// ─── account create ─────────────────────────────────────────────────────────

var accountCreateCmd = &cobra.Command{
	Use:   "create [ACCOUNT_ID]",
	Short: "Create an account",
	Long:  `Create an account with a personality profile. Omit ACCOUNT_ID to generate one.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAccountCreate,
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	id := uuid.NewString()
	if len(args) == 1 {
		id = args[0]
	}
	credits, _ := cmd.Flags().GetInt64("credits")
	typeName, _ := cmd.Flags().GetString("type")
	pace, _ := cmd.Flags().GetInt("pace")
	social, _ := cmd.Flags().GetInt("social")
	taste, _ := cmd.Flags().GetInt("taste")
	values, _ := cmd.Flags().GetInt("values")
	attachment, _ := cmd.Flags().GetInt("attachment")

	account := &domain.Account{
		ID: id,
		Profile: domain.PersonalityProfile{
			TypeName:   typeName,
			Pace:       pace,
			Social:     social,
			Taste:      taste,
			Values:     values,
			Attachment: attachment,
		},
	}
	if err := db.CreateAccount(context.Background(), account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	if credits > 0 {
		if _, err := db.Credit(context.Background(), id, credits, domain.TxGrant, "initial grant"); err != nil {
			return fmt.Errorf("grant credits: %w", err)
		}
	}

	fmt.Fprintf(os.Stdout, "Account %s created with %d credits.\n", id, credits)
	return nil
}

// ─── account show ───────────────────────────────────────────────────────────

var accountShowCmd = &cobra.Command{
	Use:   "show ACCOUNT_ID",
	Short: "Show an account's balance and profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountShow,
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	account, err := db.GetAccount(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Account:  %s\n", account.ID)
	fmt.Fprintf(os.Stdout, "Credits:  %d\n", account.Credits)
	if account.HasPartner() {
		fmt.Fprintf(os.Stdout, "Partner:  %s\n", account.PartnerID)
	} else {
		fmt.Fprintln(os.Stdout, "Partner:  (none)")
	}
	p := account.Profile
	fmt.Fprintf(os.Stdout, "Profile:  %s (pace %d, social %d, taste %d, values %d, attachment %d)\n",
		p.TypeName, p.Pace, p.Social, p.Taste, p.Values, p.Attachment)

	entries, err := db.LedgerEntries(context.Background(), account.ID, 10)
	if err == nil && len(entries) > 0 {
		fmt.Fprintln(os.Stdout, "\nRecent ledger entries:")
		for _, e := range entries {
			fmt.Fprintf(os.Stdout, "  %-6s %-6s %4d  balance %4d  %s\n",
				e.EntryType, e.Type, e.Amount, e.Balance, e.Reason)
		}
	}
	return nil
}

// ─── account credit ─────────────────────────────────────────────────────────

var accountCreditCmd = &cobra.Command{
	Use:   "credit ACCOUNT_ID AMOUNT",
	Short: "Grant credits to an account",
	Args:  cobra.ExactArgs(2),
	RunE:  runAccountCredit,
}

func runAccountCredit(cmd *cobra.Command, args []string) error {
	var amount int64
	if _, err := fmt.Sscanf(args[1], "%d", &amount); err != nil || amount <= 0 {
		return fmt.Errorf("amount must be a positive integer, got %q", args[1])
	}

	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	reason, _ := cmd.Flags().GetString("reason")
	balance, err := db.Credit(context.Background(), args[0], amount, domain.TxGrant, reason)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Granted %d credits to %s. Balance: %d\n", amount, args[0], balance)
	return nil
}

// ─── account pair ───────────────────────────────────────────────────────────

var accountPairCmd = &cobra.Command{
	Use:   "pair ACCOUNT_A ACCOUNT_B",
	Short: "Link two accounts as partners",
	Long:  `Link two accounts as partners so paired mode works for both. The link is symmetric; an account already linked to someone else cannot be re-paired.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runAccountPair,
}

func runAccountPair(cmd *cobra.Command, args []string) error {
	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.LinkPartners(context.Background(), args[0], args[1]); err != nil {
		return fmt.Errorf("link partners: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Linked %s and %s as partners.\n", args[0], args[1])
	return nil
}

// ─── account token ──────────────────────────────────────────────────────────

var accountTokenCmd = &cobra.Command{
	Use:   "token ACCOUNT_ID",
	Short: "Mint an access token for an account",
	Long:  `Mint an access token signed with the daemon's secret. The token carries the account identity for the chat and account endpoints.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountToken,
}

func runAccountToken(cmd *cobra.Command, args []string) error {
	db, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	// Verify the account exists before minting
	if _, err := db.GetAccount(context.Background(), args[0]); err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	secret, err := daemon.AuthSecret(cfg)
	if err != nil {
		return err
	}

	cred, err := token.New(secret, cfg.TokenTTL()).Mint(args[0])
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	fmt.Fprintln(os.Stdout, cred)
	return nil
}
