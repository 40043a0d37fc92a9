package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/urfave/cli"
)

var createCommand = cli.Command{
	Name:     "create",
	Category: "Swaps",
	Usage:    "Create a new submarine swap.",
	Description: `
	Create a swap paying out the given value on-chain, claimable with the
	preimage of the given payment hash. The returned record carries the
	hold invoice to pay and the contract address that will be funded.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "pubkey",
			Usage: "the hex encoded refund pubkey",
		},
		cli.Int64Flag{
			Name:  "value",
			Usage: "the on-chain payout in satoshi",
		},
		cli.StringFlag{
			Name:  "payment_hash",
			Usage: "the hex encoded payment hash",
		},
	},
	Action: create,
}

func create(ctx *cli.Context) error {
	req := struct {
		PubKey      string `json:"pubkey"`
		Value       int64  `json:"value"`
		PaymentHash string `json:"payment_hash"`
	}{
		PubKey:      ctx.String("pubkey"),
		Value:       ctx.Int64("value"),
		PaymentHash: ctx.String("payment_hash"),
	}

	payload, err := json.Marshal(&req)
	if err != nil {
		return err
	}

	resp, err := http.Post(
		ctx.GlobalString("swapserver")+"/api/v1/create",
		"application/json", bytes.NewReader(payload),
	)
	if err != nil {
		return err
	}

	return printResponse(resp)
}

var lookupCommand = cli.Command{
	Name:      "lookup",
	Category:  "Swaps",
	Usage:     "Look up a swap by id.",
	ArgsUsage: "swap_id",
	Action:    lookup,
}

func lookup(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "lookup")
	}

	resp, err := http.Get(fmt.Sprintf(
		"%s/api/v1/lookup/%s",
		ctx.GlobalString("swapserver"), ctx.Args().First(),
	))
	if err != nil {
		return err
	}

	return printResponse(resp)
}

var settleCommand = cli.Command{
	Name:      "settle",
	Category:  "Swaps",
	Usage:     "Settle an accepted swap with its preimage.",
	ArgsUsage: "swap_id preimage",
	Description: `
	Manually settle the hold invoice of an accepted swap. This is the
	fallback for when the chain watcher has not observed the on-chain
	sweep yet.`,
	Action: settle,
}

func settle(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "settle")
	}

	endpoint := fmt.Sprintf(
		"%s/api/v1/settle/%s?preimage=%s",
		ctx.GlobalString("swapserver"), ctx.Args().First(),
		url.QueryEscape(ctx.Args().Get(1)),
	)
	resp, err := http.Post(endpoint, "application/json", nil)
	if err != nil {
		return err
	}

	return printResponse(resp)
}

// printResponse renders the broker's JSON response with indentation, or
// surfaces the error detail on failure statuses.
func printResponse(resp *http.Response) error {
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broker returned status %d: %s",
			resp.StatusCode, payload)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, payload, "", "    "); err != nil {
		return err
	}
	fmt.Println(out.String())

	return nil
}
