package deposit

import "github.com/gin-gonic/gin"

type IHandler interface {
	RequestAddress(c *gin.Context)
	CheckPayment(c *gin.Context)
	HasAccess(c *gin.Context)
	ListChains(c *gin.Context)
}
