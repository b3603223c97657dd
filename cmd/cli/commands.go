package main

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iho/fundscore/internal/adapter/http/dto"
	"github.com/iho/fundscore/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/fundscore/internal/adapter/repository/postgres"
)

func accountCmd(c *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account ledger operations",
	}

	var open dto.OpenAccountRequest
	openCmd := &cobra.Command{
		Use:   "open",
		Short: "Open a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodPost, "/api/v1/accounts", open, nil)
		},
	}
	openCmd.Flags().StringVar(&open.UserID, "user", "", "Owner user ID")
	openCmd.Flags().StringVar(&open.Type, "type", "SAVINGS", "Account type (SAVINGS, CHECKING, BUSINESS, FIXED_DEPOSIT)")
	openCmd.Flags().StringVar(&open.Name, "name", "", "Account name")
	openCmd.Flags().StringVar(&open.Currency, "currency", "", "ISO currency code")
	openCmd.Flags().StringVar(&open.MinimumBalance, "minimum-balance", "", "Minimum balance")
	_ = openCmd.MarkFlagRequired("name")

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodGet, "/api/v1/accounts"+pageQuery(limit, offset, nil), nil, nil)
		},
	}
	pageFlags(listCmd, &limit, &offset)

	var direction string
	movementCmd := &cobra.Command{
		Use:   "movement ACCOUNT_ID REFERENCE",
		Short: "Show a credit or debit applied under a reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/movements/" + url.PathEscape(args[1]) + "?direction=" + url.QueryEscape(direction)
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodGet, path, nil, nil)
		},
	}
	movementCmd.Flags().StringVar(&direction, "direction", "DEBIT", "DEBIT or CREDIT")

	cmd.AddCommand(
		openCmd,
		listCmd,
		movementCmd,
		getCmd(c, "get ACCOUNT_ID", "Show an account", "/api/v1/accounts/"),
		getCmd(c, "lookup ID_OR_NUMBER", "Resolve an account by ID or account number", "/api/v1/accounts/lookup/"),
		movementRequestCmd(c, "credit", "Add funds to an account"),
		movementRequestCmd(c, "debit", "Remove funds from an account"),
		postCmd(c, "activate ACCOUNT_ID", "Activate an account", "/api/v1/accounts/", "/activate"),
		postCmd(c, "freeze ACCOUNT_ID", "Freeze an account", "/api/v1/accounts/", "/freeze"),
		postCmd(c, "close ACCOUNT_ID", "Close an account with zero balance", "/api/v1/accounts/", "/close"),
	)
	return cmd
}

func movementRequestCmd(c *apiClient, action, short string) *cobra.Command {
	var req dto.MovementRequest
	cmd := &cobra.Command{
		Use:   action + " ACCOUNT_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/" + action
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodPost, path, req, nil)
		},
	}
	cmd.Flags().StringVar(&req.Amount, "amount", "", "Amount")
	cmd.Flags().StringVar(&req.Reference, "reference", "", "Idempotent movement reference")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

func ledgerCmd(c *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Transaction ledger operations",
	}

	var quote dto.QuoteFeeRequest
	feesCmd := &cobra.Command{
		Use:   "fees",
		Short: "Quote the fee for an amount",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodPost, "/api/v1/transactions/fees", quote, nil)
		},
	}
	feesCmd.Flags().StringVar(&quote.Amount, "amount", "", "Amount")
	feesCmd.Flags().StringVar(&quote.Type, "type", "TRANSFER", "Transaction type")
	feesCmd.Flags().StringVar(&quote.TransferType, "transfer-type", "", "Transfer channel")
	_ = feesCmd.MarkFlagRequired("amount")

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list ACCOUNT_ID",
		Short: "List transactions touching an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/transactions/accounts/" + url.PathEscape(args[0]) + pageQuery(limit, offset, nil)
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodGet, path, nil, nil)
		},
	}
	pageFlags(listCmd, &limit, &offset)

	balanceCmd := &cobra.Command{
		Use:   "balance ACCOUNT_ID",
		Short: "Show the net completed ledger balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/transactions/accounts/" + url.PathEscape(args[0]) + "/balance"
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodGet, path, nil, nil)
		},
	}

	cmd.AddCommand(
		feesCmd,
		listCmd,
		balanceCmd,
		getCmd(c, "get TRANSACTION_ID", "Show a transaction", "/api/v1/transactions/"),
		getCmd(c, "reference REFERENCE", "Show a transaction by reference", "/api/v1/transactions/reference/"),
	)
	return cmd
}

func transferCmd(c *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer orchestrator operations",
	}

	var (
		create dto.CreateTransferRequest
		async  bool
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Move funds between two accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if create.ClientReference == "" {
				create.ClientReference = postgresRepo.NewULIDGenerator().Generate()
			}
			headers := map[string]string{middleware.IdempotencyKeyHeader: create.ClientReference}
			if async {
				headers["Prefer"] = "respond-async"
			}
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodPost, "/api/v1/transfers", create, headers)
		},
	}
	createCmd.Flags().StringVar(&create.SenderAccountID, "from", "", "Sender account ID or number")
	createCmd.Flags().StringVar(&create.RecipientAccountID, "to", "", "Recipient account ID or number")
	createCmd.Flags().StringVar(&create.Amount, "amount", "", "Amount")
	createCmd.Flags().StringVar(&create.Currency, "currency", "", "ISO currency code")
	createCmd.Flags().StringVar(&create.Type, "type", "", "Transfer channel (default INTERNAL)")
	createCmd.Flags().StringVar(&create.Description, "description", "", "Description")
	createCmd.Flags().StringVar(&create.ClientReference, "client-ref", "", "Client reference, also sent as the idempotency key (generated when empty)")
	createCmd.Flags().BoolVar(&async, "async", false, "Return as soon as the transfer is accepted")
	_ = createCmd.MarkFlagRequired("from")
	_ = createCmd.MarkFlagRequired("to")
	_ = createCmd.MarkFlagRequired("amount")

	var (
		limit, offset int
		direction     string
	)
	listCmd := &cobra.Command{
		Use:   "list ACCOUNT_ID",
		Short: "List transfers of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := url.Values{}
			if direction != "" {
				extra.Set("direction", direction)
			}
			path := "/api/v1/transfers/accounts/" + url.PathEscape(args[0]) + pageQuery(limit, offset, extra)
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodGet, path, nil, nil)
		},
	}
	pageFlags(listCmd, &limit, &offset)
	listCmd.Flags().StringVar(&direction, "direction", "", "all, sent or received")

	statsCmd := &cobra.Command{
		Use:   "stats ACCOUNT_ID",
		Short: "Show transfer statistics of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/transfers/accounts/" + url.PathEscape(args[0]) + "/stats"
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodGet, path, nil, nil)
		},
	}

	cmd.AddCommand(
		createCmd,
		listCmd,
		statsCmd,
		getCmd(c, "get TRANSFER_ID", "Show a transfer", "/api/v1/transfers/"),
		getCmd(c, "reference REFERENCE", "Show a transfer by reference", "/api/v1/transfers/reference/"),
		postCmd(c, "cancel TRANSFER_ID", "Cancel a transfer that has not moved funds", "/api/v1/transfers/", "/cancel"),
		postCmd(c, "retry TRANSFER_ID", "Start a new transfer from a failed one", "/api/v1/transfers/", "/retry"),
	)
	return cmd
}

// getCmd fetches prefix+ARG.
func getCmd(c *apiClient, use, short, prefix string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodGet, prefix+url.PathEscape(args[0]), nil, nil)
		},
	}
}

// postCmd posts an empty body to prefix+ARG+suffix.
func postCmd(c *apiClient, use, short, prefix, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), cmd.OutOrStdout(), http.MethodPost, prefix+url.PathEscape(args[0])+suffix, nil, nil)
		},
	}
}

func pageFlags(cmd *cobra.Command, limit, offset *int) {
	cmd.Flags().IntVar(limit, "limit", 20, "Page size")
	cmd.Flags().IntVar(offset, "offset", 0, "Page offset")
}

func pageQuery(limit, offset int, extra url.Values) string {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return "?" + q.Encode()
}
