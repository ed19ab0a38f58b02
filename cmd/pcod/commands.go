package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	restservice "github.com/pco-network/pco/internal/interface/rest"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

const weiPerEthExp = 18

// flags
var (
	idFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "the id of the asset",
		Required: true,
	}
	beneficiaryFlag = &cli.StringFlag{
		Name:     "beneficiary",
		Usage:    "the identity receiving the tax of the asset",
		Required: true,
	}
	taxRateFlag = &cli.Uint64Flag{
		Name:     "tax-rate",
		Usage:    "the tax numerator, over a denominator of 10^12 per tax period",
		Required: true,
	}
	taxPeriodFlag = &cli.Int64Flag{
		Name:  "tax-period",
		Usage: "the tax period in seconds",
		Value: 365 * 24 * 60 * 60,
	}
	valuationFlag = &cli.StringFlag{
		Name:     "valuation",
		Usage:    "the valuation in ETH",
		Required: true,
	}
	currentValuationFlag = &cli.StringFlag{
		Name:     "current-valuation",
		Usage:    "the valuation in ETH the takeover is expected to pay",
		Required: true,
	}
	amountFlag = &cli.StringFlag{
		Name:     "amount",
		Usage:    "the amount in ETH",
		Required: true,
	}
	paymentFlag = &cli.StringFlag{
		Name:  "payment",
		Usage: "the value in ETH sent along with the request",
		Value: "0",
	}
	contractFlag = &cli.StringFlag{
		Name:     "contract",
		Usage:    "the external registry holding the token",
		Required: true,
	}
	tokenIdFlag = &cli.StringFlag{
		Name:     "token-id",
		Usage:    "the id of the token in the external registry",
		Required: true,
	}
	sinceFlag = &cli.Int64Flag{
		Name:  "since",
		Usage: "unix timestamp from which to compute the tax owed",
	}
	recipientFlag = &cli.StringFlag{
		Name:  "recipient",
		Usage: "the recipient to check, defaults to the caller",
	}
)

// commands
var (
	infoCmd = &cli.Command{
		Name:   "info",
		Usage:  "Get info about the running daemon",
		Action: infoAction,
	}
	assetCmd = &cli.Command{
		Name:  "asset",
		Usage: "Manage taxed assets",
		Subcommands: append(
			cli.Commands{},
			assetListCmd,
			assetInfoCmd,
			assetCreateCmd,
			assetWrapCmd,
			assetTakeoverCmd,
			assetAssessCmd,
			assetDepositCmd,
			assetWithdrawCmd,
			assetExitCmd,
			assetCollectCmd,
			assetBeneficiaryCmd,
			assetTitleCmd,
			assetTaxCmd,
		),
	}
	assetListCmd = &cli.Command{
		Name:   "list",
		Usage:  "List the ids of all assets",
		Action: assetListAction,
	}
	assetInfoCmd = &cli.Command{
		Name:   "info",
		Usage:  "Get the state of an asset",
		Action: assetInfoAction,
		Flags:  []cli.Flag{idFlag},
	}
	assetCreateCmd = &cli.Command{
		Name:   "create",
		Usage:  "Create a new asset held by the custodian",
		Action: assetCreateAction,
		Flags:  []cli.Flag{idFlag, beneficiaryFlag, taxRateFlag, taxPeriodFlag},
	}
	assetWrapCmd = &cli.Command{
		Name:  "wrap",
		Usage: "Wrap a token of an external registry into a taxed asset",
		Action: assetWrapAction,
		Flags: []cli.Flag{
			contractFlag, tokenIdFlag, valuationFlag, paymentFlag,
			beneficiaryFlag, taxRateFlag, taxPeriodFlag,
		},
	}
	assetTakeoverCmd = &cli.Command{
		Name:   "takeover",
		Usage:  "Take over the lease of an asset",
		Action: assetTakeoverAction,
		Flags:  []cli.Flag{idFlag, valuationFlag, currentValuationFlag, paymentFlag},
	}
	assetAssessCmd = &cli.Command{
		Name:   "assess",
		Usage:  "Self-assess the valuation of an owned asset",
		Action: assetAssessAction,
		Flags:  []cli.Flag{idFlag, valuationFlag},
	}
	assetDepositCmd = &cli.Command{
		Name:   "deposit",
		Usage:  "Add to the deposit of an owned asset",
		Action: assetDepositAction,
		Flags:  []cli.Flag{idFlag, amountFlag},
	}
	assetWithdrawCmd = &cli.Command{
		Name:   "withdraw",
		Usage:  "Withdraw from the deposit of an owned asset",
		Action: assetWithdrawAction,
		Flags:  []cli.Flag{idFlag, amountFlag},
	}
	assetExitCmd = &cli.Command{
		Name:   "exit",
		Usage:  "Withdraw the whole deposit and give the asset back to the custodian",
		Action: assetExitAction,
		Flags:  []cli.Flag{idFlag},
	}
	assetCollectCmd = &cli.Command{
		Name:   "collect",
		Usage:  "Collect the tax owed on an asset",
		Action: assetCollectAction,
		Flags:  []cli.Flag{idFlag},
	}
	assetBeneficiaryCmd = &cli.Command{
		Name:   "beneficiary",
		Usage:  "Change the beneficiary of an asset",
		Action: assetBeneficiaryAction,
		Flags:  []cli.Flag{idFlag, beneficiaryFlag},
	}
	assetTitleCmd = &cli.Command{
		Name:   "title",
		Usage:  "Get the chain of title of an asset",
		Action: assetTitleAction,
		Flags:  []cli.Flag{idFlag},
	}
	assetTaxCmd = &cli.Command{
		Name:   "tax",
		Usage:  "Get the tax owed on an asset since a given time",
		Action: assetTaxAction,
		Flags:  []cli.Flag{idFlag, sinceFlag},
	}
	remittanceCmd = &cli.Command{
		Name:  "remittance",
		Usage: "Manage outstanding remittances",
		Subcommands: append(
			cli.Commands{},
			remittanceBalanceCmd,
			remittanceWithdrawCmd,
		),
	}
	remittanceBalanceCmd = &cli.Command{
		Name:   "balance",
		Usage:  "Get the outstanding remittance of a recipient",
		Action: remittanceBalanceAction,
		Flags:  []cli.Flag{recipientFlag},
	}
	remittanceWithdrawCmd = &cli.Command{
		Name:   "withdraw",
		Usage:  "Withdraw the outstanding remittance of the caller",
		Action: remittanceWithdrawAction,
	}
)

func infoAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/info", ctx.String("url"))
	info, err := get[map[string]any](url, "", "")
	if err != nil {
		return err
	}
	return printJSON(info)
}

func assetListAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/assets", ctx.String("url"))
	ids, err := get[[]string](url, "assets", "")
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func assetInfoAction(ctx *cli.Context) error {
	url := assetURL(ctx, "")
	asset, err := get[map[string]any](url, "", ctx.String("caller"))
	if err != nil {
		return err
	}
	return printJSON(asset)
}

func assetCreateAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/assets", ctx.String("url"))
	body := map[string]any{
		"id":            ctx.String("id"),
		"beneficiary":   ctx.String("beneficiary"),
		"tax_numerator": ctx.Uint64("tax-rate"),
		"tax_period":    ctx.Int64("tax-period"),
	}
	id, err := post[string](url, body, "id", ctx.String("caller"))
	if err != nil {
		return err
	}

	fmt.Printf("asset %s created\n", id)
	return nil
}

func assetWrapAction(ctx *cli.Context) error {
	valuation, err := toWei(ctx.String("valuation"))
	if err != nil {
		return err
	}
	payment, err := toWei(ctx.String("payment"))
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/assets/wrap", ctx.String("url"))
	body := map[string]any{
		"contract":      ctx.String("contract"),
		"token_id":      ctx.String("token-id"),
		"valuation":     valuation,
		"payment":       payment,
		"beneficiary":   ctx.String("beneficiary"),
		"tax_numerator": ctx.Uint64("tax-rate"),
		"tax_period":    ctx.Int64("tax-period"),
	}
	id, err := post[string](url, body, "id", ctx.String("caller"))
	if err != nil {
		return err
	}

	fmt.Printf("asset %s created\n", id)
	return nil
}

func assetTakeoverAction(ctx *cli.Context) error {
	newValuation, err := toWei(ctx.String("valuation"))
	if err != nil {
		return err
	}
	currentValuation, err := toWei(ctx.String("current-valuation"))
	if err != nil {
		return err
	}
	payment, err := toWei(ctx.String("payment"))
	if err != nil {
		return err
	}

	return postAndPrintRemittances(ctx, assetURL(ctx, "takeover"), map[string]any{
		"new_valuation":     newValuation,
		"current_valuation": currentValuation,
		"payment":           payment,
	})
}

func assetAssessAction(ctx *cli.Context) error {
	valuation, err := toWei(ctx.String("valuation"))
	if err != nil {
		return err
	}
	return postAndPrintRemittances(ctx, assetURL(ctx, "assess"), map[string]any{
		"valuation": valuation,
	})
}

func assetDepositAction(ctx *cli.Context) error {
	value, err := toWei(ctx.String("amount"))
	if err != nil {
		return err
	}
	return postAndPrintRemittances(ctx, assetURL(ctx, "deposit"), map[string]any{
		"value": value,
	})
}

func assetWithdrawAction(ctx *cli.Context) error {
	amount, err := toWei(ctx.String("amount"))
	if err != nil {
		return err
	}
	return postAndPrintRemittances(ctx, assetURL(ctx, "withdraw"), map[string]any{
		"amount": amount,
	})
}

func assetExitAction(ctx *cli.Context) error {
	return postAndPrintRemittances(ctx, assetURL(ctx, "exit"), nil)
}

func assetCollectAction(ctx *cli.Context) error {
	return postAndPrintRemittances(ctx, assetURL(ctx, "collect"), nil)
}

func assetBeneficiaryAction(ctx *cli.Context) error {
	return postAndPrintRemittances(ctx, assetURL(ctx, "beneficiary"), map[string]any{
		"beneficiary": ctx.String("beneficiary"),
	})
}

func assetTitleAction(ctx *cli.Context) error {
	chain, err := get[[]titleTransfer](assetURL(ctx, "title"), "title_chain", "")
	if err != nil {
		return err
	}
	if len(chain) <= 0 {
		fmt.Println("no transfers")
		return nil
	}
	for _, transfer := range chain {
		fmt.Println(transfer)
	}
	return nil
}

func assetTaxAction(ctx *cli.Context) error {
	since := ctx.Int64("since")
	if !ctx.IsSet("since") {
		since = time.Now().Unix()
	}

	url := fmt.Sprintf("%s?since=%d", assetURL(ctx, "tax"), since)
	taxOwed, err := get[amount](url, "tax_owed", "")
	if err != nil {
		return err
	}

	fmt.Printf("tax owed: %s\n", taxOwed)
	return nil
}

func remittanceBalanceAction(ctx *cli.Context) error {
	recipient := ctx.String("recipient")
	if recipient == "" {
		recipient = ctx.String("caller")
	}
	if recipient == "" {
		return fmt.Errorf("missing recipient, either pass --recipient or --caller")
	}

	url := fmt.Sprintf(
		"%s/v1/remittances/%s", ctx.String("url"), url.PathEscape(recipient),
	)
	outstanding, err := get[amount](url, "outstanding", "")
	if err != nil {
		return err
	}

	fmt.Printf("outstanding remittance of %s: %s\n", recipient, outstanding)
	return nil
}

func remittanceWithdrawAction(ctx *cli.Context) error {
	caller := ctx.String("caller")
	if caller == "" {
		return fmt.Errorf("missing caller")
	}

	url := fmt.Sprintf("%s/v1/remittances/withdraw", ctx.String("url"))
	remittances, err := post[[]remittance](url, nil, "remittances", caller)
	if err != nil {
		return err
	}

	for _, r := range remittances {
		fmt.Println(r)
	}
	return nil
}

func assetURL(ctx *cli.Context, action string) string {
	u := fmt.Sprintf(
		"%s/v1/assets/%s", ctx.String("url"), url.PathEscape(ctx.String("id")),
	)
	if action == "" {
		return u
	}
	return fmt.Sprintf("%s/%s", u, action)
}

func postAndPrintRemittances(ctx *cli.Context, url string, body any) error {
	remittances, err := post[[]remittance](url, body, "remittances", ctx.String("caller"))
	if err != nil {
		return err
	}

	if len(remittances) <= 0 {
		fmt.Println("done, nothing to remit")
		return nil
	}
	for _, r := range remittances {
		fmt.Println(r)
	}
	return nil
}

// toWei converts an amount expressed in ETH into its decimal wei string.
func toWei(eth string) (string, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(eth))
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %s", eth, err)
	}
	if value.IsNegative() {
		return "", fmt.Errorf("invalid amount %q: must not be negative", eth)
	}

	wei := value.Shift(weiPerEthExp)
	if !wei.Equal(wei.Truncate(0)) {
		return "", fmt.Errorf("invalid amount %q: too many decimals", eth)
	}
	return wei.StringFixed(0), nil
}

type amount struct {
	Wei string `json:"wei"`
	Eth string `json:"eth"`
}

func (a amount) String() string {
	return fmt.Sprintf("%s ETH", a.Eth)
}

type remittance struct {
	Id        string `json:"id"`
	AssetId   string `json:"asset_id"`
	Recipient string `json:"recipient"`
	Amount    amount `json:"amount"`
	Trigger   string `json:"trigger"`
	Escrowed  bool   `json:"escrowed"`
}

func (r remittance) String() string {
	status := "sent"
	if r.Escrowed {
		status = "escrowed"
	}
	if r.AssetId == "" {
		return fmt.Sprintf("%s %s to %s (%s)", status, r.Amount, r.Recipient, r.Trigger)
	}
	return fmt.Sprintf(
		"%s %s to %s (%s, asset %s)", status, r.Amount, r.Recipient, r.Trigger, r.AssetId,
	)
}

type titleTransfer struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Valuation amount `json:"valuation"`
	Timestamp int64  `json:"timestamp"`
}

func (t titleTransfer) String() string {
	return fmt.Sprintf(
		"%s  %s -> %s  at %s",
		time.Unix(t.Timestamp, 0).Format(time.DateTime), t.From, t.To, t.Valuation,
	)
}

func printJSON(v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}

func post[T any](url string, body any, key, caller string) (result T, err error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return result, err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest("POST", url, reqBody)
	if err != nil {
		return
	}
	return do[T](req, key, caller)
}

func get[T any](url, key, caller string) (result T, err error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return
	}
	return do[T](req, key, caller)
}

func do[T any](req *http.Request, key, caller string) (result T, err error) {
	req.Header.Add("Content-Type", "application/json")
	if len(caller) > 0 {
		req.Header.Add(restservice.CallerHeader, caller)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errResp := struct {
			Error string `json:"error"`
		}{}
		if json.Unmarshal(buf, &errResp) == nil && errResp.Error != "" {
			err = fmt.Errorf("request failed (%d): %s", resp.StatusCode, errResp.Error)
			return
		}
		err = fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(buf))
		return
	}

	if key == "" {
		err = json.Unmarshal(buf, &result)
		return
	}

	res := make(map[string]T)
	if err = json.Unmarshal(buf, &res); err != nil {
		return
	}

	result = res[key]
	return
}
