package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"fusd/crypto"
	"fusd/native/synth"
)

type depositParams struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type mintParams struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type redeemParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type burnParams struct {
	Payer      string `json:"payer"`
	OnBehalfOf string `json:"onBehalfOf"`
	Amount     string `json:"amount"`
}

type depositAndMintParams struct {
	User          string `json:"user"`
	Asset         string `json:"asset"`
	DepositAmount string `json:"depositAmount"`
	MintAmount    string `json:"mintAmount"`
}

type redeemForDebtParams struct {
	User             string `json:"user"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	BurnAmount       string `json:"burnAmount"`
}

type liquidateParams struct {
	Liquidator  string `json:"liquidator"`
	User        string `json:"user"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type accountParams struct {
	User string `json:"user"`
}

type txReceipt struct {
	Receipt string `json:"receipt"`
	Status  string `json:"status"`
}

type liquidationReceipt struct {
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	DebtCover string `json:"debtCover"`
	Seized    string `json:"seized"`
}

type positionResult struct {
	Address      string            `json:"address"`
	Collateral   map[string]string `json:"collateral"`
	Debt         string            `json:"debt"`
	HealthFactor string            `json:"healthFactor"`
}

type assetResult struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

var errParamCount = errors.New("expected a single params object")

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errParamCount
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(raw string) (crypto.Address, error) {
	return crypto.DecodeAddress(strings.TrimSpace(raw))
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("amount %q must be a base-10 integer", raw)
	}
	return amount, nil
}

func newReceipt() string { return uuid.NewString() }

func (s *Server) writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status, code := errorStatus(err)
	var data interface{}
	var hfErr *synth.HealthFactorError
	if errors.As(err, &hfErr) {
		data = map[string]string{"healthFactor": hfErr.Factor.String()}
	}
	writeError(w, status, id, code, err.Error(), data)
}

func (s *Server) handleDepositCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	started := time.Now()
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	err = s.engine.DepositCollateral(user, params.Asset, amount)
	s.metrics.Observe("deposit_collateral", err, started)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txReceipt{Receipt: newReceipt(), Status: "ok"})
}

func (s *Server) handleMintDebt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	started := time.Now()
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	err = s.engine.MintDebt(user, amount)
	s.metrics.Observe("mint_debt", err, started)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txReceipt{Receipt: newReceipt(), Status: "ok"})
}

func (s *Server) handleRedeemCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	started := time.Now()
	var params redeemParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid from address", err.Error())
		return
	}
	to := from
	if strings.TrimSpace(params.To) != "" {
		if to, err = parseAddress(params.To); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to address", err.Error())
			return
		}
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	err = s.engine.RedeemCollateral(from, to, params.Asset, amount)
	s.metrics.Observe("redeem_collateral", err, started)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txReceipt{Receipt: newReceipt(), Status: "ok"})
}

func (s *Server) handleBurnDebt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	started := time.Now()
	var params burnParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payer, err := parseAddress(params.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payer address", err.Error())
		return
	}
	onBehalfOf := payer
	if strings.TrimSpace(params.OnBehalfOf) != "" {
		if onBehalfOf, err = parseAddress(params.OnBehalfOf); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid onBehalfOf address", err.Error())
			return
		}
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	err = s.engine.BurnDebt(payer, onBehalfOf, amount)
	s.metrics.Observe("burn_debt", err, started)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txReceipt{Receipt: newReceipt(), Status: "ok"})
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	started := time.Now()
	var params depositAndMintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	depositAmount, err := parseAmount(params.DepositAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	mintAmount, err := parseAmount(params.MintAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	err = s.engine.DepositCollateralAndMintDebt(user, params.Asset, depositAmount, mintAmount)
	s.metrics.Observe("deposit_and_mint", err, started)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txReceipt{Receipt: newReceipt(), Status: "ok"})
}

func (s *Server) handleRedeemForDebt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	started := time.Now()
	var params redeemForDebtParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	collateralAmount, err := parseAmount(params.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	burnAmount, err := parseAmount(params.BurnAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	err = s.engine.RedeemCollateralForDebt(user, params.Asset, collateralAmount, burnAmount)
	s.metrics.Observe("redeem_for_debt", err, started)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txReceipt{Receipt: newReceipt(), Status: "ok"})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	started := time.Now()
	var params liquidateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	liquidator, err := parseAddress(params.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid liquidator address", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	debtToCover, err := parseAmount(params.DebtToCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	covered, seized, err := s.engine.Liquidate(liquidator, user, params.Asset, debtToCover)
	s.metrics.Observe("liquidate", err, started)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveLiquidation()
	writeResult(w, req.ID, liquidationReceipt{
		Receipt:   newReceipt(),
		Status:    "ok",
		DebtCover: covered.String(),
		Seized:    seized.String(),
	})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	pos, err := s.engine.Position(user)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	factor, err := s.engine.HealthFactor(user)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	collateral := make(map[string]string, len(pos.Collateral))
	for symbol, amount := range pos.Collateral {
		collateral[symbol] = amount.String()
	}
	writeResult(w, req.ID, positionResult{
		Address:      user.String(),
		Collateral:   collateral,
		Debt:         pos.Debt.String(),
		HealthFactor: factor.String(),
	})
}

func (s *Server) handleHealthFactor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	factor, err := s.engine.HealthFactor(user)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"healthFactor": factor.String()})
}

func (s *Server) handleAccountValue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	value, err := s.engine.AccountValueUsd(user)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"valueUsd": value.String()})
}

func (s *Server) handleListAssets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	assets := s.engine.Assets()
	out := make([]assetResult, 0, len(assets))
	for _, asset := range assets {
		out = append(out, assetResult{Symbol: asset.Symbol, Decimals: asset.Decimals})
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleTotalSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	supply, err := s.debtToken.TotalSupply()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{"totalSupply": supply.String()})
}
