package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	redemptiondomain "github.com/smallbiznis/loyalty/internal/redemption/domain"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

type redeemRequest struct {
	ItemID string `json:"item_id"`
}

func (s *Server) Redeem(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	itemID, err := snowflake.ParseString(strings.TrimSpace(req.ItemID))
	if err != nil || itemID == 0 {
		AbortWithError(c, redemptiondomain.ErrInvalidItem)
		return
	}

	res, err := s.redemptionSvc.Redeem(c.Request.Context(), redemptiondomain.RedeemRequest{
		UserID:         userID,
		ItemID:         itemID,
		IdempotencyKey: c.GetHeader(headerIdempotencyKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body := res.Response
	if len(body) == 0 {
		if body, err = json.Marshal(res); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	if res.Replayed {
		c.Header(headerReplayed, "true")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", wrapData(body))
}

func (s *Server) ListRedemptions(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.redemptionSvc.ListHistory(c.Request.Context(), redemptiondomain.ListHistoryRequest{
		UserID:    userID,
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Redemptions, "page_info": resp.PageInfo})
}

func (s *Server) GetBalance(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	balance, err := s.pointsSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func parseUserID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("user_id")))
	if err != nil || id == 0 {
		AbortWithError(c, redemptiondomain.ErrInvalidUser)
		return 0, false
	}
	return id, true
}

// wrapData envelopes a stored response without re-encoding it.
func wrapData(body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(body) + 10)
	buf.WriteString(`{"data":`)
	buf.Write(body)
	buf.WriteString(`}`)
	return buf.Bytes()
}
