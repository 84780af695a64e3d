package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/expenseflow/expenseflow-api/internal/middleware"
	"github.com/expenseflow/expenseflow-api/internal/models"
	"github.com/expenseflow/expenseflow-api/internal/service"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Expenses      *ExpenseHandler
	Approvals     *ApprovalHandler
	Rules         *RuleHandler
	Budgets       *BudgetHandler
	Departments   *DepartmentHandler
	Projects      *ProjectHandler
	Notifications *NotificationHandler
	Dashboard     *DashboardHandler
	Reports       *ReportHandler
	Currency      *CurrencyHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes mounts the API surface onto the engine.
func RegisterRoutes(r *gin.Engine, h Handlers, auth *service.AuthService) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signup", h.Auth.Signup)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
	}

	// Download links are pre-signed; the token carries its own expiry.
	api.GET("/reports/download", h.Reports.Serve)

	protected := api.Group("", middleware.JWT(auth))
	{
		protected.POST("/auth/logout", h.Auth.Logout)
		protected.POST("/auth/change-password", h.Auth.ChangePassword)
		protected.GET("/auth/me", h.Auth.Me)

		adminOnly := middleware.RBAC(models.RoleAdmin)
		managersUp := middleware.RBAC(models.RoleAdmin, models.RoleManager)

		users := protected.Group("/users", adminOnly)
		{
			users.GET("", h.Users.List)
			users.POST("", h.Users.Create)
			users.GET("/:id", h.Users.Get)
			users.PUT("/:id", h.Users.Update)
			users.DELETE("/:id", h.Users.Delete)
		}

		expenses := protected.Group("/expenses")
		{
			expenses.GET("", h.Expenses.List)
			expenses.POST("", h.Expenses.Create)
			expenses.GET("/:id", h.Expenses.Get)
			expenses.POST("/:id/receipt", h.Expenses.UploadReceipt)
		}

		approvals := protected.Group("/approvals", managersUp)
		{
			approvals.GET("/pending", h.Approvals.Pending)
			approvals.GET("/:id/chain", h.Approvals.Chain)
			approvals.POST("/:id/decision", h.Approvals.Decide)
		}

		rules := protected.Group("/rules", adminOnly)
		{
			rules.GET("", h.Rules.List)
			rules.POST("", h.Rules.Create)
			rules.GET("/:id", h.Rules.Get)
			rules.PUT("/:id", h.Rules.Update)
			rules.DELETE("/:id", h.Rules.Delete)
		}

		budgets := protected.Group("/budgets", managersUp)
		{
			budgets.GET("", h.Budgets.List)
			budgets.GET("/:id", h.Budgets.Get)
			budgets.POST("", adminOnly, h.Budgets.Create)
			budgets.PUT("/:id", adminOnly, h.Budgets.Update)
			budgets.DELETE("/:id", adminOnly, h.Budgets.Delete)
		}

		departments := protected.Group("/departments")
		{
			departments.GET("", h.Departments.List)
			departments.GET("/:id", h.Departments.Get)
			departments.POST("", adminOnly, h.Departments.Create)
			departments.PUT("/:id", adminOnly, h.Departments.Update)
			departments.DELETE("/:id", adminOnly, h.Departments.Delete)
		}

		projects := protected.Group("/projects")
		{
			projects.GET("", h.Projects.List)
			projects.GET("/:id", h.Projects.Get)
			projects.POST("", adminOnly, h.Projects.Create)
			projects.PUT("/:id", adminOnly, h.Projects.Update)
			projects.DELETE("/:id", adminOnly, h.Projects.Delete)
		}

		protected.GET("/currency/rates", h.Currency.Rates)

		notifications := protected.Group("/notifications")
		{
			notifications.GET("", h.Notifications.List)
			notifications.GET("/unread-count", h.Notifications.UnreadCount)
			notifications.POST("/:id/read", h.Notifications.MarkRead)
			notifications.POST("/read-all", h.Notifications.MarkAllRead)
		}

		protected.GET("/dashboard/summary", h.Dashboard.Summary)

		reports := protected.Group("/reports", managersUp)
		{
			reports.GET("", h.Reports.List)
			reports.POST("", h.Reports.Create)
			reports.GET("/:id", h.Reports.Get)
			reports.GET("/:id/download", h.Reports.Download)
		}
	}
}
