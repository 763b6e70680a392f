package controllers

import (
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/rules"
	"github.com/danz-app/danz/utils"
)

// ConfigController serves the static game tables the client renders.
type ConfigController struct{}

func NewConfigController() *ConfigController { return &ConfigController{} }

var poolOrder = []rules.PoolType{rules.PoolIntimate, rules.PoolLarge, rules.PoolCreator}

// GetTiers returns the party tiers in ascending order.
func (c *ConfigController) GetTiers(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"items": rules.PartyTiers})
}

// GetPools returns the pool types.
func (c *ConfigController) GetPools(ctx *gin.Context) {
	items := make([]rules.PoolConfig, 0, len(poolOrder))
	for _, t := range poolOrder {
		items = append(items, rules.PartyPools[t])
	}
	utils.Success(ctx, gin.H{"items": items})
}

// GetSlashing returns the penalty table per pool type.
func (c *ConfigController) GetSlashing(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"pools": rules.DefaultSlashConfig})
}

// GetRoles returns what each party role may do.
func (c *ConfigController) GetRoles(ctx *gin.Context) {
	roles := make([]string, 0, len(rules.RolePermissions))
	for r := range rules.RolePermissions {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roleRank(roles[i]) < roleRank(roles[j]) })
	items := make([]gin.H, 0, len(roles))
	for _, r := range roles {
		items = append(items, gin.H{"role": r, "permissions": rules.PermissionsFor(r)})
	}
	utils.Success(ctx, gin.H{"items": items})
}

func roleRank(role string) int {
	switch role {
	case models.RoleLeader:
		return 0
	case models.RoleCoLeader:
		return 1
	default:
		return 2
	}
}
