package rpc

import "net/http"

type ledgerBalanceParams struct {
	Address string `json:"address"`
}

type ledgerTransferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type ledgerApproveParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type ledgerAllowanceParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

type balanceResult struct {
	Address        string `json:"address"`
	Balance        string `json:"balance"`
	PendingRewards string `json:"pendingRewards"`
}

type transferResult struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Balance string `json:"balance"`
}

type approveResult struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

func handleLedgerBalance(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params ledgerBalanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := decodeBech32(params.Address)
	if err != nil {
		return nil, errInvalidParams("invalid address", err)
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		return nil, engineError(err)
	}
	pending, err := s.node.PendingRewards(addr)
	if err != nil {
		return nil, engineError(err)
	}
	return &balanceResult{
		Address:        bech32String(addr),
		Balance:        bigString(balance),
		PendingRewards: bigString(pending),
	}, nil
}

func handleLedgerTransfer(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params ledgerTransferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, err := decodeBech32(params.From)
	if err != nil {
		return nil, errInvalidParams("invalid sender address", err)
	}
	to, err := decodeBech32(params.To)
	if err != nil {
		return nil, errInvalidParams("invalid recipient address", err)
	}
	amount, err := amountFromString(params.Amount)
	if err != nil {
		return nil, errInvalidParams("invalid amount", err)
	}
	if err := s.node.Transfer(from, to, amount); err != nil {
		return nil, engineError(err)
	}
	balance, err := s.node.Balance(from)
	if err != nil {
		return nil, engineError(err)
	}
	return &transferResult{
		From:    bech32String(from),
		To:      bech32String(to),
		Amount:  amount.String(),
		Balance: bigString(balance),
	}, nil
}

func handleLedgerApprove(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params ledgerApproveParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := decodeBech32(params.Owner)
	if err != nil {
		return nil, errInvalidParams("invalid owner address", err)
	}
	spender, err := decodeBech32(params.Spender)
	if err != nil {
		return nil, errInvalidParams("invalid spender address", err)
	}
	amount, err := amountFromString(params.Amount)
	if err != nil {
		return nil, errInvalidParams("invalid amount", err)
	}
	if err := s.node.Approve(owner, spender, amount); err != nil {
		return nil, engineError(err)
	}
	allowance, err := s.node.Allowance(owner, spender)
	if err != nil {
		return nil, engineError(err)
	}
	return &approveResult{
		Owner:     bech32String(owner),
		Spender:   bech32String(spender),
		Allowance: bigString(allowance),
	}, nil
}

func handleLedgerAllowance(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params ledgerAllowanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := decodeBech32(params.Owner)
	if err != nil {
		return nil, errInvalidParams("invalid owner address", err)
	}
	spender, err := decodeBech32(params.Spender)
	if err != nil {
		return nil, errInvalidParams("invalid spender address", err)
	}
	allowance, err := s.node.Allowance(owner, spender)
	if err != nil {
		return nil, engineError(err)
	}
	return &approveResult{
		Owner:     bech32String(owner),
		Spender:   bech32String(spender),
		Allowance: bigString(allowance),
	}, nil
}

func handleLedgerTotalSupply(s *Server, _ *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	supply, err := s.node.TotalSupply()
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]string{"totalSupply": bigString(supply)}, nil
}
