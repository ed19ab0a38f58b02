package restservice

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/pco-network/pco/internal/core/application"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CallerHeader carries the identity of whoever invokes an operation.
const CallerHeader = "X-Caller-Identity"

type handler struct {
	svc application.Service
}

func newHandler(svc application.Service) *handler {
	return &handler{svc}
}

func (h *handler) register(router gin.IRouter) {
	router.GET("/info", h.getInfo)

	assets := router.Group("/assets")
	assets.GET("", h.listAssets)
	assets.POST("", h.createAsset)
	assets.POST("/wrap", h.wrap)
	assets.GET("/:id", h.getAsset)
	assets.GET("/:id/title", h.getTitleChain)
	assets.GET("/:id/tax", h.getTaxOwedSince)
	assets.POST("/:id/takeover", h.takeoverLease)
	assets.POST("/:id/assess", h.selfAssess)
	assets.POST("/:id/deposit", h.deposit)
	assets.POST("/:id/withdraw", h.withdrawDeposit)
	assets.POST("/:id/exit", h.exit)
	assets.POST("/:id/collect", h.collectTax)
	assets.POST("/:id/beneficiary", h.setBeneficiary)
	assets.POST("/:id/transfer", h.transferFrom)

	remittances := router.Group("/remittances")
	remittances.GET("/:recipient", h.getOutstandingRemittance)
	remittances.POST("/withdraw", h.withdrawOutstandingRemittance)
}

func (h *handler) getInfo(c *gin.Context) {
	info, err := h.svc.GetInfo(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, infoResponse{
		Custodian:          info.Custodian,
		TaxDenominator:     info.TaxDenominator,
		PaymentTimeout:     info.PaymentTimeout,
		CollectionInterval: info.CollectionInterval,
		Registries:         info.Registries,
	})
}

func (h *handler) listAssets(c *gin.Context) {
	ids, err := h.svc.ListAssets(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": ids})
}

func (h *handler) createAsset(c *gin.Context) {
	var req createAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	asset, err := h.svc.CreateAsset(
		c.Request.Context(), req.Id, req.Beneficiary, req.TaxNumerator, req.TaxPeriod,
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": asset.Id})
}

func (h *handler) wrap(c *gin.Context) {
	var req wrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	valuation, err := parseAmount(req.Valuation)
	if err != nil {
		badRequest(c, err)
		return
	}
	payment, err := parseAmount(req.Payment)
	if err != nil {
		badRequest(c, err)
		return
	}

	asset, err := h.svc.Wrap(c.Request.Context(), application.WrapRequest{
		Caller:       caller(c),
		Contract:     req.Contract,
		TokenId:      req.TokenId,
		Valuation:    valuation,
		Payment:      payment,
		Beneficiary:  req.Beneficiary,
		TaxNumerator: req.TaxNumerator,
		TaxPeriod:    req.TaxPeriod,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": asset.Id})
}

func (h *handler) getAsset(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	asset, err := h.svc.GetAsset(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}

	var (
		taxOwed         *uint256.Int
		taxOwedAt       int64
		withdrawable    *uint256.Int
		foreclosed      bool
		foreclosureTime int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		taxOwed, taxOwedAt, err = h.svc.TaxOwed(gctx, id)
		return
	})
	g.Go(func() (err error) {
		withdrawable, err = h.svc.WithdrawableDeposit(gctx, id)
		return
	})
	g.Go(func() (err error) {
		foreclosed, err = h.svc.Foreclosed(gctx, id)
		return
	})
	g.Go(func() (err error) {
		foreclosureTime, _, err = h.svc.ForeclosureTime(gctx, id)
		return
	})
	if err := g.Wait(); err != nil {
		fail(c, err)
		return
	}

	resp := assetResponse{
		Id:                            asset.Id,
		Owner:                         asset.Owner,
		Beneficiary:                   asset.Beneficiary,
		Valuation:                     toAmount(&asset.Valuation),
		Deposit:                       toAmount(&asset.Deposit),
		TaxNumerator:                  asset.TaxNumerator,
		TaxPeriod:                     asset.TaxPeriod,
		LastCollectionTime:            asset.LastCollectionTime,
		LastTransferTime:              asset.LastTransferTime,
		TaxCollectedSinceLastTransfer: toAmount(&asset.TaxCollectedSinceLastTransfer),
		TaxationCollected:             toAmount(&asset.TotalTaxCollected),
		TaxOwed:                       toAmount(taxOwed),
		TaxOwedAt:                     taxOwedAt,
		WithdrawableDeposit:           toAmount(withdrawable),
		Foreclosed:                    foreclosed,
		ForeclosureTime:               foreclosureTime,
	}
	if asset.Wrapped != nil {
		resp.Wrapped = &wrappedToken{asset.Wrapped.Contract, asset.Wrapped.TokenId}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) getTitleChain(c *gin.Context) {
	chain, err := h.svc.TitleChainOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"title_chain": toTitleChain(chain)})
}

func (h *handler) getTaxOwedSince(c *gin.Context) {
	since, err := strconv.ParseInt(c.Query("since"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}

	taxOwed, err := h.svc.TaxOwedSince(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tax_owed": toAmount(taxOwed)})
}

func (h *handler) takeoverLease(c *gin.Context) {
	var req takeoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	newValuation, err := parseAmount(req.NewValuation)
	if err != nil {
		badRequest(c, err)
		return
	}
	currentValuation, err := parseAmount(req.CurrentValuation)
	if err != nil {
		badRequest(c, err)
		return
	}
	payment, err := parseAmount(req.Payment)
	if err != nil {
		badRequest(c, err)
		return
	}

	results, err := h.svc.TakeoverLease(
		c.Request.Context(), c.Param("id"), caller(c),
		newValuation, currentValuation, payment,
	)
	respond(c, results, err)
}

func (h *handler) selfAssess(c *gin.Context) {
	var req selfAssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	valuation, err := parseAmount(req.Valuation)
	if err != nil {
		badRequest(c, err)
		return
	}

	results, err := h.svc.SelfAssess(c.Request.Context(), c.Param("id"), caller(c), valuation)
	respond(c, results, err)
}

func (h *handler) deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		badRequest(c, err)
		return
	}

	results, err := h.svc.Deposit(c.Request.Context(), c.Param("id"), caller(c), value)
	respond(c, results, err)
}

func (h *handler) withdrawDeposit(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	value, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}

	results, err := h.svc.WithdrawDeposit(c.Request.Context(), c.Param("id"), caller(c), value)
	respond(c, results, err)
}

func (h *handler) exit(c *gin.Context) {
	results, err := h.svc.Exit(c.Request.Context(), c.Param("id"), caller(c))
	respond(c, results, err)
}

func (h *handler) collectTax(c *gin.Context) {
	results, err := h.svc.CollectTax(c.Request.Context(), c.Param("id"))
	respond(c, results, err)
}

func (h *handler) setBeneficiary(c *gin.Context) {
	var req setBeneficiaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	results, err := h.svc.SetBeneficiary(
		c.Request.Context(), c.Param("id"), caller(c), req.Beneficiary,
	)
	respond(c, results, err)
}

func (h *handler) transferFrom(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.TransferFrom(
		c.Request.Context(), c.Param("id"), caller(c), req.From, req.To,
	); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) getOutstandingRemittance(c *gin.Context) {
	recipient := c.Param("recipient")
	balance, err := h.svc.OutstandingRemittanceOf(c.Request.Context(), recipient)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipient": recipient, "outstanding": toAmount(balance)})
}

func (h *handler) withdrawOutstandingRemittance(c *gin.Context) {
	results, err := h.svc.WithdrawOutstandingRemittance(c.Request.Context(), caller(c))
	respond(c, results, err)
}

func caller(c *gin.Context) string {
	return c.GetHeader(CallerHeader)
}

func respond(c *gin.Context, results []application.RemittanceResult, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRemittances(results))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{err.Error()})
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Errorf("%s %s failed", c.Request.Method, c.FullPath())
	}
	c.JSON(status, errorResponse{err.Error()})
}
