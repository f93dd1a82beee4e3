package payment

import (
	"github.com/smallbiznis/fanbase/internal/payment/adapters"
	"github.com/smallbiznis/fanbase/internal/payment/adapters/stripe"
	"github.com/smallbiznis/fanbase/internal/payment/gateway"
	"github.com/smallbiznis/fanbase/internal/payment/receipt"
	"github.com/smallbiznis/fanbase/internal/payment/reconcile"
	"github.com/smallbiznis/fanbase/internal/payment/repository"
	"github.com/smallbiznis/fanbase/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(
		fx.Annotate(gateway.NewHTTPClient, fx.As(new(gateway.Client))),
	),
	fx.Provide(
		fx.Annotate(receipt.NewClient, fx.As(new(receipt.Verifier))),
	),
	fx.Provide(reconcile.NewService),
	fx.Provide(webhook.NewService),
)
