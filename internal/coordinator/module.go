package coordinator

import (
	"context"

	"go.uber.org/fx"

	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
)

// Module wires the Coordinator into the application's fx graph. Tunables
// arrive as an optional "coordinator_options" value group so the
// configuration layer can fx.Provide/fx.Supply as many Option values as it
// needs without this module knowing anything about configuration sources.
var Module = fx.Module("coordinator",
	fx.Provide(
		fx.Annotate(
			provide,
			fx.ParamTags(``, `group:"coordinator_options"`),
		),
	),
)

func provide(s storage.Storage, opts []Option) (*Coordinator, error) {
	return New(context.Background(), s, opts...)
}
