package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/metergate/metergate/internal/apikey/domain"
	customerdomain "github.com/metergate/metergate/internal/customer/domain"
	developerdomain "github.com/metergate/metergate/internal/developer/domain"
	tierdomain "github.com/metergate/metergate/internal/tier/domain"
	"github.com/metergate/metergate/pkg/db/pagination"
)

// AdminListCustomers pages through customers with optional name, email and
// active filters.
func (b *Billing) AdminListCustomers(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := customerdomain.ListCustomerRequest{
		PageToken: page.PageToken,
		PageSize:  int32(page.PageSize),
		Name:      strings.TrimSpace(c.Query("name")),
		Email:     strings.TrimSpace(c.Query("email")),
	}
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		active := raw == "true" || raw == "1"
		req.IsActive = &active
	}

	resp, err := b.customerSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (b *Billing) AdminCreateCustomer(c *gin.Context) {
	var req customerdomain.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customer, err := b.customerSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (b *Billing) AdminGetCustomer(c *gin.Context) {
	customer, err := b.customerSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// AdminSetCustomerActive suspends or reinstates a customer. Deactivation
// takes effect at the gateway as cached key contexts expire.
func (b *Billing) AdminSetCustomerActive(c *gin.Context) {
	var req customerdomain.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	customer, err := b.customerSvc.SetActive(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (b *Billing) AdminChangeCustomerTier(c *gin.Context) {
	var req customerdomain.ChangeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	customer, err := b.customerSvc.ChangeTier(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (b *Billing) AdminListCustomerKeys(c *gin.Context) {
	keys, err := b.keySvc.ListByCustomer(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (b *Billing) AdminListTiers(c *gin.Context) {
	tiers, err := b.tierSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (b *Billing) AdminCreateTier(c *gin.Context) {
	var req tierdomain.CreateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tier, err := b.tierSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tier)
}

func (b *Billing) AdminUpdateTier(c *gin.Context) {
	var req tierdomain.UpdateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	tier, err := b.tierSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tier)
}

// AdminCreateKey mints a key for a customer. The raw secret appears in this
// response and nowhere else.
func (b *Billing) AdminCreateKey(c *gin.Context) {
	var req apikeydomain.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	secret, err := b.keySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, secret)
}

// AdminRotateKey issues a replacement secret and retires the old one.
func (b *Billing) AdminRotateKey(c *gin.Context) {
	secret, err := b.keySvc.Rotate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, secret)
}

func (b *Billing) AdminRevokeKey(c *gin.Context) {
	if err := b.keySvc.Revoke(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (b *Billing) AdminListDevelopers(c *gin.Context) {
	developers, err := b.developerSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"developers": developers})
}

func (b *Billing) AdminCreateDeveloper(c *gin.Context) {
	var req developerdomain.CreateDeveloperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	developer, err := b.developerSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, developer)
}

func (b *Billing) AdminUpdateDeveloper(c *gin.Context) {
	var req developerdomain.UpdateDeveloperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	developer, err := b.developerSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, developer)
}
