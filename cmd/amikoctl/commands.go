package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amikopay/amiko/payee"
	"github.com/amikopay/amiko/payer"
	"github.com/amikopay/amiko/paymenturl"
	"github.com/amikopay/amiko/transport"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

// confirmPrompt asks for a y/n confirmation, but only when stdout is
// an interactive terminal — matching sendPaymentCommand's --force
// flag's purpose without needing one, since a non-terminal caller (a
// script, a test) has no one to prompt and should just proceed.
func confirmPrompt(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return true, nil
	}
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes", nil
}

var balanceCommand = cli.Command{
	Name:  "balance",
	Usage: "List this node's Links and their current balances.",
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		n, err := openNode(cfg)
		if err != nil {
			return err
		}
		defer closeNode(n)

		balances, err := n.List()
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.AppendHeader(table.Row{"Link", "Local", "Remote"})
		for _, b := range balances {
			t.AppendRow(table.Row{b.Name, b.Local, b.Remote})
		}
		fmt.Println(t.Render())
		return nil
	},
}

var requestCommand = cli.Command{
	Name:      "request",
	Usage:     "Create a payment request and print its amikopay:// URL.",
	ArgsUsage: "amount receipt_text [meeting_point ...]",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "host", Value: "localhost", Usage: "host the URL advertises for the payer to dial back"},
		cli.IntFlag{Name: "port", Value: 7071, Usage: "port the URL advertises for the payer to dial back"},
		cli.DurationFlag{Name: "wait", Value: 0, Usage: "block until the request commits, cancels, or this elapses (0 disables waiting)"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 2 {
			return fmt.Errorf("amikoctl: request needs an amount and a receipt text")
		}
		amount, err := strconv.ParseInt(ctx.Args().Get(0), 10, 64)
		if err != nil {
			return fmt.Errorf("amikoctl: invalid amount: %w", err)
		}
		receiptText := ctx.Args().Get(1)
		meetingPoints := []string(ctx.Args())[2:]

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		n, err := openNode(cfg)
		if err != nil {
			return err
		}
		defer closeNode(n)

		url, err := n.Request(btcutil.Amount(amount), receiptText, meetingPoints, ctx.String("host"), ctx.Int("port"))
		if err != nil {
			return err
		}
		fmt.Println(url)

		wait := ctx.Duration("wait")
		if wait <= 0 {
			return nil
		}
		_, _, reqID, err := paymenturl.Parse(url)
		if err != nil {
			return err
		}

		deadline := time.Now().Add(wait)
		for time.Now().Before(deadline) {
			st, err := n.RequestStatus(reqID)
			if err != nil {
				return err
			}
			if st == payee.StateCommitted || st == payee.StateCancelled {
				fmt.Printf("request %s\n", st)
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
		return fmt.Errorf("amikoctl: timed out waiting for request to settle")
	},
}

var payCommand = cli.Command{
	Name:      "pay",
	Usage:     "Pay an amikopay:// URL and wait for the payment to commit.",
	ArgsUsage: "url amount",
	Flags: []cli.Flag{
		cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "how long to wait for the receipt and for the final commit"},
		cli.BoolFlag{Name: "force, f", Usage: "skip the interactive confirmation prompt"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 2 {
			return fmt.Errorf("amikoctl: pay needs a url and an amount")
		}
		url := ctx.Args().Get(0)
		amount, err := strconv.ParseInt(ctx.Args().Get(1), 10, 64)
		if err != nil {
			return fmt.Errorf("amikoctl: invalid amount: %w", err)
		}

		if !ctx.Bool("force") {
			ok, err := confirmPrompt(fmt.Sprintf("Pay %d to %s?", amount, url))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("amikoctl: payment cancelled")
			}
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		n, err := openNode(cfg)
		if err != nil {
			return err
		}
		defer closeNode(n)

		dialCtx, cancel := context.WithTimeout(context.Background(), ctx.Duration("timeout"))
		defer cancel()
		if err := n.Pay(dialCtx, url, btcutil.Amount(amount), &transport.TCPDialer{}); err != nil {
			return err
		}

		deadline := time.Now().Add(ctx.Duration("timeout"))
		for time.Now().Before(deadline) {
			st, err := n.PaymentStatus()
			if err != nil {
				return err
			}
			if st == payer.StateHasReceipt {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}

		if err := n.ConfirmPayment(); err != nil {
			return fmt.Errorf("amikoctl: confirming payment: %w", err)
		}

		for time.Now().Before(deadline) {
			st, err := n.PaymentStatus()
			if err != nil {
				return err
			}
			if st == payer.StateCommitted || st == payer.StateCancelled {
				fmt.Printf("payment %s\n", st)
				return nil
			}
			time.Sleep(50 * time.Millisecond)
		}
		return fmt.Errorf("amikoctl: timed out waiting for payment to settle")
	},
}

var depositCommand = cli.Command{
	Name:  "deposit",
	Usage: "Request a deposit address from the settlement backend.",
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		n, err := openNode(cfg)
		if err != nil {
			return err
		}
		defer closeNode(n)

		addr, err := n.Deposit(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}
