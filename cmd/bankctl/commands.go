package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/R3E-Network/bankline/internal/app"
	"github.com/R3E-Network/bankline/internal/cli"
	"github.com/R3E-Network/bankline/internal/domain"
)

type commands struct {
	app   *app.Application
	out   *cli.Printer
	query string
}

func (c *commands) dispatch(ctx context.Context, args []string) error {
	name, rest := args[0], args[1:]
	switch name {
	case "accounts":
		return c.accounts(ctx, rest)
	case "transactions":
		return c.transactions(ctx, rest)
	case "transfer":
		return c.transfer(ctx, rest)
	case "history":
		return c.history(ctx)
	case "payees":
		return c.payees(ctx, rest)
	case "pending":
		return c.pending(ctx)
	case "sync":
		return c.sync(ctx)
	case "upload":
		return c.upload(ctx, rest)
	case "login":
		return c.login(ctx, rest)
	case "logout":
		c.app.Session.Expire()
		c.out.Success("session cleared")
		return nil
	case "watch":
		return c.watch(ctx)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (c *commands) print(v any) error {
	return c.out.JSON(v, c.query)
}

func (c *commands) accounts(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	repo := c.app.Repository
	switch sub {
	case "list":
		accounts, err := repo.Accounts(ctx)
		if err != nil {
			return err
		}
		return c.print(accounts)
	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: accounts get ID")
		}
		acct, err := repo.Account(ctx, args[0])
		if err != nil {
			return err
		}
		return c.print(acct)
	case "rename":
		if len(args) != 2 {
			return fmt.Errorf("usage: accounts rename ID NAME")
		}
		acct, err := repo.Account(ctx, args[0])
		if err != nil {
			return err
		}
		updated, err := repo.UpdateAccount(ctx, acct.ID, domain.AccountUpdate{Name: args[1], IsActive: acct.IsActive})
		if err != nil {
			return err
		}
		return c.print(updated)
	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: accounts delete ID")
		}
		if err := repo.DeleteAccount(ctx, args[0]); err != nil {
			return err
		}
		c.out.Success("account %s deleted", args[0])
		return nil
	default:
		return fmt.Errorf("unknown accounts command %q", sub)
	}
}

func (c *commands) transactions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transactions", flag.ContinueOnError)
	fs.SetOutput(c.out.Err)
	limit := fs.Int("limit", 0, "Page size (default: server page size)")
	offset := fs.Int("offset", 0, "Number of transactions to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: transactions [-limit N] [-offset N] ACCOUNT")
	}
	txs, err := c.app.Repository.Transactions(ctx, fs.Arg(0), *limit, *offset)
	if err != nil {
		return err
	}
	return c.print(txs)
}

func (c *commands) transfer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
	fs.SetOutput(c.out.Err)
	from := fs.String("from", "", "Source account id")
	to := fs.String("to", "", "Destination account number")
	amount := fs.String("amount", "", "Amount, e.g. 25.50")
	description := fs.String("description", "", "Optional memo")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *amount == "" {
		return fmt.Errorf("transfer: -amount is required")
	}
	value, err := domain.ParseMoney(*amount)
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	result, err := c.app.Repository.CreateTransfer(ctx, domain.TransferRequest{
		FromAccountID:   *from,
		ToAccountNumber: *to,
		Amount:          value,
		Description:     *description,
	})
	if err != nil {
		return err
	}
	if result.SyncState == domain.SyncLocal {
		c.out.Warning("transfer queued until the bank API is reachable")
	}
	return c.print(result)
}

func (c *commands) history(ctx context.Context) error {
	history, err := c.app.Repository.TransferHistory(ctx)
	if err != nil {
		return err
	}
	return c.print(history)
}

func (c *commands) payees(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	repo := c.app.Repository
	switch sub {
	case "list":
		payees, err := repo.Payees(ctx)
		if err != nil {
			return err
		}
		return c.print(payees)
	case "add":
		fs := flag.NewFlagSet("payees add", flag.ContinueOnError)
		fs.SetOutput(c.out.Err)
		var p domain.FrequentAccount
		fs.StringVar(&p.ID, "id", "", "Existing payee id to update")
		fs.StringVar(&p.Name, "name", "", "Payee name")
		fs.StringVar(&p.AccountNumber, "account", "", "Payee account number")
		fs.StringVar(&p.BankName, "bank", "", "Payee bank")
		fs.StringVar(&p.Nickname, "nickname", "", "Short label")
		if err := fs.Parse(args); err != nil {
			return err
		}
		saved, err := repo.SavePayee(ctx, p)
		if err != nil {
			return err
		}
		if saved.SyncState == domain.SyncLocal {
			c.out.Warning("payee saved locally, run `bankctl sync` once online")
		}
		return c.print(saved)
	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: payees delete ID")
		}
		if err := repo.DeletePayee(ctx, args[0]); err != nil {
			return err
		}
		c.out.Success("payee %s deleted", args[0])
		return nil
	default:
		return fmt.Errorf("unknown payees command %q", sub)
	}
}

func (c *commands) pending(ctx context.Context) error {
	ops, err := c.app.Repository.Pending(ctx)
	if err != nil {
		return err
	}
	return c.print(ops)
}

func (c *commands) sync(ctx context.Context) error {
	spinner := cli.NewSpinner(c.out.Err, "replaying queued operations")
	spinner.Start()
	report, err := c.app.Syncer.RunNow(ctx)
	if err != nil {
		spinner.Error("sync failed")
		return err
	}
	spinner.Success(fmt.Sprintf("synced %d, dropped %d, remaining %d", report.Synced, report.Dropped, report.Remaining))
	return c.print(report)
}

func (c *commands) upload(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: upload ACCOUNT FILE")
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read statement: %w", err)
	}
	spinner := cli.NewSpinner(c.out.Err, "uploading "+filepath.Base(args[1]))
	spinner.Start()
	receipt, err := c.app.Client.UploadStatement(ctx, args[0], data, contentType(args[1], data))
	if err != nil {
		spinner.Error("upload failed")
		return err
	}
	spinner.Success("statement uploaded")
	return c.print(receipt)
}

func (c *commands) login(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("usage: login TOKEN")
	}
	if err := c.app.Session.SetToken(ctx, strings.TrimSpace(args[0])); err != nil {
		return err
	}
	if claims, err := c.app.Session.Claims(); err == nil && claims.ExpiresAt != nil {
		c.out.Success("token stored, expires %s", claims.ExpiresAt.Time.Format("2006-01-02 15:04"))
		return nil
	}
	c.out.Success("token stored")
	return nil
}

// watch runs the background services until interrupted: connectivity
// polling, scheduled sync and the metrics endpoint when configured.
func (c *commands) watch(ctx context.Context) error {
	if err := c.app.Start(ctx); err != nil {
		return err
	}
	c.out.Info("watching %s, press Ctrl+C to stop", c.app.Config.API.BaseURL)
	<-ctx.Done()
	return c.app.Stop(context.Background())
}

func contentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
