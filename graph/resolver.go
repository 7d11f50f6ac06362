// graph/resolver.go

package graph

import (
	"github.com/UkralStul/oraculum-service/internal/notify"
	"github.com/UkralStul/oraculum-service/internal/storage"
)

// Resolver - это корневая структура резолвера.
// Она содержит все зависимости, которые нужны для выполнения запросов.
type Resolver struct {
	Storage storage.Storage
	Hub     *notify.Hub
}
