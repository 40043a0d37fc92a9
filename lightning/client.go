// Package lightning wraps the Lightning node's REST API: the hold invoice
// subsystem plus the on-chain wallet endpoints the coordinator funds swaps
// from. Authentication uses the node's hex macaroon; the TLS certificate is
// optional and, when absent, verification is skipped to accommodate the
// node's self-signed default.
package lightning

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lightningswap/subswapd/swap"
)

const (
	// macaroonHeader is the metadata header the node authenticates by.
	macaroonHeader = "Grpc-Metadata-macaroon"

	defaultRequestTimeout = 30 * time.Second
)

var (
	// ErrNoPaymentRequest is returned when invoice creation succeeds at
	// the transport level but the node returns no payment request.
	ErrNoPaymentRequest = fmt.Errorf("node returned no payment request")

	// ErrInvoiceNotSettled is returned when a settle call produces
	// anything other than an empty success response. Settling an
	// already settled invoice lands here too.
	ErrInvoiceNotSettled = fmt.Errorf("invoice not settled")
)

// Client is a REST client for the Lightning node implementing
// swap.LightningClient.
type Client struct {
	host     string
	macaroon string
	http     *http.Client
}

// A compile time check to ensure Client implements the façade the
// coordinator depends on.
var _ swap.LightningClient = (*Client)(nil)

// New creates a client for the node at host. The macaroon is hex encoded;
// tlsCert is the node's PEM certificate, or nil to skip verification.
func New(host, macaroonHex string, tlsCert []byte) (*Client, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: true}
	if len(tlsCert) != 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(tlsCert) {
			return nil, fmt.Errorf("unable to parse node " +
				"certificate")
		}
		tlsConfig = &tls.Config{RootCAs: pool}
	}

	return &Client{
		host:     host,
		macaroon: macaroonHex,
		http: &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		},
	}, nil
}

// call performs one REST round trip, unmarshalling the response into resp
// when non-nil. Non-2xx statuses are returned as errors carrying the node's
// message.
func (c *Client) call(ctx context.Context, method, endpoint string,
	req, resp interface{}) error {

	var body io.Reader
	if req != nil {
		payload, err := json.Marshal(req)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, method, c.host+endpoint, body,
	)
	if err != nil {
		return err
	}
	httpReq.Header.Set(macaroonHeader, c.macaroon)

	log.Tracef("Calling %v %v", method, endpoint)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return err
	}

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned status %d: %s",
			httpResp.StatusCode, payload)
	}

	if resp != nil {
		return json.Unmarshal(payload, resp)
	}

	return nil
}

// int64String parses the string-encoded 64 bit integers the node's REST
// encoding produces. An absent field reads as zero.
func int64String(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return v
}

// CreateHoldInvoice generates an invoice locked to the passed payment hash.
// The node will hold the customer's HTLC until SettleInvoice or
// CancelInvoice resolves it.
func (c *Client) CreateHoldInvoice(ctx context.Context, paymentHash []byte,
	value, expiry int64) (string, error) {

	req := struct {
		Hash   string `json:"hash"`
		Value  string `json:"value"`
		Expiry string `json:"expiry"`
	}{
		Hash:   base64.StdEncoding.EncodeToString(paymentHash),
		Value:  strconv.FormatInt(value, 10),
		Expiry: strconv.FormatInt(expiry, 10),
	}
	var resp struct {
		PaymentRequest string `json:"payment_request"`
	}

	err := c.call(ctx, http.MethodPost, "/v2/invoices/hodl", &req, &resp)
	if err != nil {
		return "", err
	}
	if resp.PaymentRequest == "" {
		return "", ErrNoPaymentRequest
	}

	return resp.PaymentRequest, nil
}

// LookupInvoice returns the state of the invoice locked to paymentHash.
func (c *Client) LookupInvoice(ctx context.Context,
	paymentHash []byte) (swap.InvoiceState, error) {

	var resp struct {
		State string `json:"state"`
	}

	endpoint := "/v1/invoice/" + hex.EncodeToString(paymentHash)
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", err
	}

	return swap.InvoiceState(resp.State), nil
}

// SettleInvoice settles an accepted hold invoice. The node reports success
// as an empty object; any other payload means the settlement did not take,
// which includes replays against an already settled invoice.
func (c *Client) SettleInvoice(ctx context.Context, preimage []byte) error {
	req := struct {
		Preimage string `json:"preimage"`
	}{
		Preimage: base64.StdEncoding.EncodeToString(preimage),
	}
	var resp map[string]interface{}

	err := c.call(ctx, http.MethodPost, "/v2/invoices/settle", &req, &resp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvoiceNotSettled, err)
	}
	if len(resp) != 0 {
		return ErrInvoiceNotSettled
	}

	return nil
}

// CancelInvoice cancels the hold invoice locked to paymentHash, returning
// the customer's HTLC off-chain.
func (c *Client) CancelInvoice(ctx context.Context, paymentHash []byte) error {
	req := struct {
		PaymentHash string `json:"payment_hash"`
	}{
		PaymentHash: base64.StdEncoding.EncodeToString(paymentHash),
	}

	return c.call(ctx, http.MethodPost, "/v2/invoices/cancel", &req, nil)
}

// SendCoins broadcasts an on-chain send of value satoshi to addr from the
// node's wallet and returns the funding txid.
func (c *Client) SendCoins(ctx context.Context, addr string,
	value int64) (string, error) {

	req := struct {
		Addr   string `json:"addr"`
		Amount string `json:"amount"`
	}{
		Addr:   addr,
		Amount: strconv.FormatInt(value, 10),
	}
	var resp struct {
		Txid string `json:"txid"`
	}

	err := c.call(ctx, http.MethodPost, "/v1/transactions", &req, &resp)
	if err != nil {
		return "", err
	}

	return resp.Txid, nil
}

// ListUnspent lists the wallet's utxos with at least minConfs
// confirmations.
func (c *Client) ListUnspent(ctx context.Context,
	minConfs int32) ([]swap.Utxo, error) {

	var resp struct {
		Utxos []struct {
			AmountSat     string `json:"amount_sat"`
			Confirmations string `json:"confirmations"`
			Outpoint      struct {
				TxidStr     string `json:"txid_str"`
				OutputIndex uint32 `json:"output_index"`
			} `json:"outpoint"`
		} `json:"utxos"`
	}

	endpoint := fmt.Sprintf(
		"/v1/utxos?min_confs=%d&max_confs=%d", minConfs, 0x7fffffff,
	)
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	utxos := make([]swap.Utxo, 0, len(resp.Utxos))
	for _, utxo := range resp.Utxos {
		utxos = append(utxos, swap.Utxo{
			Txid:          utxo.Outpoint.TxidStr,
			Vout:          utxo.Outpoint.OutputIndex,
			AmountSat:     int64String(utxo.AmountSat),
			Confirmations: int64String(utxo.Confirmations),
		})
	}

	return utxos, nil
}

// WalletBalance returns the wallet's effective liquidity: the total balance
// minus the reserve held back for anchor channel fee bumping.
func (c *Client) WalletBalance(ctx context.Context) (int64, error) {
	var resp struct {
		TotalBalance       string `json:"total_balance"`
		ReservedAnchorChan string `json:"reserved_balance_anchor_chan"`
	}

	endpoint := "/v1/balance/blockchain"
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return 0, err
	}

	total := int64String(resp.TotalBalance)
	reserved := int64String(resp.ReservedAnchorChan)

	return total - reserved, nil
}

// EstimateFee asks the node what a send of value to addr would cost at the
// given confirmation target.
func (c *Client) EstimateFee(ctx context.Context, addr string, value int64,
	targetConf int32) (swap.FeeEstimate, error) {

	var resp struct {
		FeeSat            string `json:"fee_sat"`
		FeeRateSatPerByte string `json:"feerate_sat_per_byte"`
	}

	params := url.Values{}
	params.Set(fmt.Sprintf("AddrToAmount[%s]", addr),
		strconv.FormatInt(value, 10))
	params.Set("target_conf", strconv.FormatInt(int64(targetConf), 10))

	endpoint := "/v1/transactions/fee?" + params.Encode()
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return swap.FeeEstimate{}, err
	}

	return swap.FeeEstimate{
		FeeSat:            int64String(resp.FeeSat),
		FeeRateSatPerByte: int64String(resp.FeeRateSatPerByte),
	}, nil
}
