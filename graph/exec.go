package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/UkralStul/oraculum-service/internal/domain"
)

//go:embed schema.graphqls
var sourceData string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: sourceData})

var errIntrospectionDisabled = errors.New("introspection disabled")

// ResolverRoot - корень резолверов, который получает исполнитель.
type ResolverRoot interface {
	Mutation() MutationResolver
	Notification() NotificationResolver
	Query() QueryResolver
	Subscription() SubscriptionResolver
}

type MutationResolver interface {
	MarkNotificationsRead(ctx context.Context, notificationID *string) (int64, error)
}

type NotificationResolver interface {
	Actor(ctx context.Context, obj *domain.Notification) (*domain.Actor, error)
}

type QueryResolver interface {
	Notifications(ctx context.Context, limit *int) ([]*domain.Notification, error)
}

type SubscriptionResolver interface {
	NotificationAdded(ctx context.Context) (<-chan *domain.Notification, error)
}

type Config struct {
	Resolvers ResolverRoot
}

// NewExecutableSchema собирает схему для handler.Server.
func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	return &executableSchema{resolvers: cfg.Resolvers}
}

type executableSchema struct {
	resolvers ResolverRoot
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (e *executableSchema) Complexity(typeName, field string, childComplexity int, args map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	ec := &executionContext{
		OperationContext: graphql.GetOperationContext(ctx),
		resolvers:        e.resolvers,
	}

	switch ec.Operation.Operation {
	case ast.Query:
		return graphql.OneShot(ec.root(ctx, "Query", ec.queryField))
	case ast.Mutation:
		return graphql.OneShot(ec.root(ctx, "Mutation", ec.mutationField))
	case ast.Subscription:
		return ec.subscription(ctx)
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}
}

type executionContext struct {
	*graphql.OperationContext
	resolvers ResolverRoot
}

type fieldFunc func(ctx context.Context, path ast.Path, field graphql.CollectedField) (json.RawMessage, gqlerror.List)

// root выполняет поля корневого типа по очереди. Все корневые поля схемы non-null,
// поэтому ошибка любого из них обнуляет data целиком.
func (ec *executionContext) root(ctx context.Context, typeName string, resolve fieldFunc) *graphql.Response {
	fields := graphql.CollectFields(ec.OperationContext, ec.Operation.SelectionSet, []string{typeName})

	var (
		buf  bytes.Buffer
		errs gqlerror.List
	)
	buf.WriteByte('{')
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, field.Alias)
		if field.Name == "__typename" {
			writeValue(&buf, typeName)
			continue
		}
		value, fieldErrs := resolve(ctx, ast.Path{ast.PathName(field.Alias)}, field)
		errs = append(errs, fieldErrs...)
		if value == nil {
			return &graphql.Response{Data: json.RawMessage("null"), Errors: errs}
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return &graphql.Response{Data: buf.Bytes(), Errors: errs}
}

func (ec *executionContext) queryField(ctx context.Context, path ast.Path, field graphql.CollectedField) (json.RawMessage, gqlerror.List) {
	switch field.Name {
	case "notifications":
		args := field.ArgumentMap(ec.Variables)
		limit, err := intArg(args, "limit")
		if err != nil {
			return nil, gqlerror.List{fieldError(ctx, path, err)}
		}
		notifications, err := ec.resolvers.Query().Notifications(ctx, limit)
		if err != nil {
			return nil, gqlerror.List{fieldError(ctx, path, err)}
		}
		return ec.notificationList(ctx, path, field.Selections, notifications)
	case "__schema", "__type":
		return nil, gqlerror.List{fieldError(ctx, path, errIntrospectionDisabled)}
	default:
		return nil, gqlerror.List{fieldError(ctx, path, fmt.Errorf("unknown field %q", field.Name))}
	}
}

func (ec *executionContext) mutationField(ctx context.Context, path ast.Path, field graphql.CollectedField) (json.RawMessage, gqlerror.List) {
	switch field.Name {
	case "markNotificationsRead":
		args := field.ArgumentMap(ec.Variables)
		var notificationID *string
		if v, ok := args["notificationId"].(string); ok {
			notificationID = &v
		}
		updated, err := ec.resolvers.Mutation().MarkNotificationsRead(ctx, notificationID)
		if err != nil {
			return nil, gqlerror.List{fieldError(ctx, path, err)}
		}
		return json.RawMessage(strconv.FormatInt(updated, 10)), nil
	default:
		return nil, gqlerror.List{fieldError(ctx, path, fmt.Errorf("unknown field %q", field.Name))}
	}
}

// subscription подписывается сразу при разборе операции; каждый вызов
// обработчика ждет следующее уведомление. nil завершает поток.
func (ec *executionContext) subscription(ctx context.Context) graphql.ResponseHandler {
	fields := graphql.CollectFields(ec.OperationContext, ec.Operation.SelectionSet, []string{"Subscription"})
	if len(fields) != 1 {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "must subscribe to exactly one stream"))
	}
	field := fields[0]
	path := ast.Path{ast.PathName(field.Alias)}
	if field.Name != "notificationAdded" {
		return graphql.OneShot(&graphql.Response{
			Data:   json.RawMessage("null"),
			Errors: gqlerror.List{fieldError(ctx, path, fmt.Errorf("unknown field %q", field.Name))},
		})
	}

	ch, err := ec.resolvers.Subscription().NotificationAdded(ctx)
	if err != nil {
		return graphql.OneShot(&graphql.Response{
			Data:   json.RawMessage("null"),
			Errors: gqlerror.List{fieldError(ctx, path, err)},
		})
	}

	return func(ctx context.Context) *graphql.Response {
		select {
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			value, errs := ec.notification(ctx, path, field.Selections, n, nil)
			var buf bytes.Buffer
			buf.WriteByte('{')
			writeKey(&buf, field.Alias)
			buf.Write(value)
			buf.WriteByte('}')
			return &graphql.Response{Data: buf.Bytes(), Errors: errs}
		case <-ctx.Done():
			return nil
		}
	}
}

// notificationList резолвит инициаторов параллельно, чтобы Dataloader собрал их в одну пачку.
func (ec *executionContext) notificationList(ctx context.Context, path ast.Path, sel ast.SelectionSet, list []*domain.Notification) (json.RawMessage, gqlerror.List) {
	resolved := make([]*resolvedActor, len(list))
	if selects(ec.OperationContext, sel, "Notification", "actor") {
		var wg sync.WaitGroup
		for i, n := range list {
			wg.Add(1)
			go func(i int, n *domain.Notification) {
				defer wg.Done()
				actor, err := ec.resolvers.Notification().Actor(ctx, n)
				resolved[i] = &resolvedActor{actor: actor, err: err}
			}(i, n)
		}
		wg.Wait()
	}

	var (
		buf  bytes.Buffer
		errs gqlerror.List
	)
	buf.WriteByte('[')
	for i, n := range list {
		if i > 0 {
			buf.WriteByte(',')
		}
		value, itemErrs := ec.notification(ctx, append(path, ast.PathIndex(i)), sel, n, resolved[i])
		errs = append(errs, itemErrs...)
		buf.Write(value)
	}
	buf.WriteByte(']')
	return buf.Bytes(), errs
}

type resolvedActor struct {
	actor *domain.Actor
	err   error
}

// notification пишет объект в порядке полей запроса. Ошибка в actor
// (поле nullable) дает null и запись в errors, остальной объект сохраняется.
func (ec *executionContext) notification(ctx context.Context, path ast.Path, sel ast.SelectionSet, n *domain.Notification, resolved *resolvedActor) (json.RawMessage, gqlerror.List) {
	fields := graphql.CollectFields(ec.OperationContext, sel, []string{"Notification"})

	var (
		buf  bytes.Buffer
		errs gqlerror.List
	)
	buf.WriteByte('{')
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, field.Alias)
		switch field.Name {
		case "__typename":
			writeValue(&buf, "Notification")
		case "id":
			writeValue(&buf, n.ID)
		case "category":
			writeValue(&buf, n.Category)
		case "content":
			writeValue(&buf, n.Content)
		case "link":
			writeNullableString(&buf, n.Link)
		case "isRead":
			writeValue(&buf, n.IsRead)
		case "createdAt":
			writeValue(&buf, n.CreatedAt.UTC().Format(time.RFC3339Nano))
		case "actor":
			if resolved == nil {
				actor, err := ec.resolvers.Notification().Actor(ctx, n)
				resolved = &resolvedActor{actor: actor, err: err}
			}
			if resolved.err != nil {
				errs = append(errs, fieldError(ctx, append(path, ast.PathName(field.Alias)), resolved.err))
				buf.WriteString("null")
				continue
			}
			writeActor(ec.OperationContext, &buf, field.Selections, resolved.actor)
		default:
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), errs
}

func writeActor(opCtx *graphql.OperationContext, buf *bytes.Buffer, sel ast.SelectionSet, actor *domain.Actor) {
	if actor == nil {
		buf.WriteString("null")
		return
	}
	buf.WriteByte('{')
	for i, field := range graphql.CollectFields(opCtx, sel, []string{"Actor"}) {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(buf, field.Alias)
		switch field.Name {
		case "__typename":
			writeValue(buf, "Actor")
		case "username":
			writeValue(buf, actor.Username)
		case "avatarUrl":
			writeNullableString(buf, actor.AvatarURL)
		default:
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
}

func selects(opCtx *graphql.OperationContext, sel ast.SelectionSet, typeName, name string) bool {
	for _, field := range graphql.CollectFields(opCtx, sel, []string{typeName}) {
		if field.Name == name {
			return true
		}
	}
	return false
}

// === helpers ===

func writeKey(buf *bytes.Buffer, key string) {
	writeValue(buf, key)
	buf.WriteByte(':')
}

func writeValue(buf *bytes.Buffer, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		buf.WriteString("null")
		return
	}
	buf.Write(raw)
}

func writeNullableString(buf *bytes.Buffer, s string) {
	if s == "" {
		buf.WriteString("null")
		return
	}
	writeValue(buf, s)
}

// intArg приводит аргумент Int: литералы приходят как int64, переменные - как json.Number или float64.
func intArg(args map[string]interface{}, name string) (*int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int64:
		n = int(t)
	case float64:
		n = int(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return nil, domain.InvalidInput(name + " must be an integer")
		}
		n = int(i)
	default:
		return nil, domain.InvalidInput(name + " must be an integer")
	}
	return &n, nil
}

// fieldError переводит доменную ошибку в ошибку GraphQL с кодом в extensions.
func fieldError(ctx context.Context, path ast.Path, err error) *gqlerror.Error {
	code := "INTERNAL"
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		code, msg = "UNAUTHENTICATED", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		code, msg = "NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		code, msg = "BAD_USER_INPUT", err.Error()
	case errors.Is(err, errIntrospectionDisabled):
		code, msg = "INTROSPECTION_DISABLED", err.Error()
	default:
		slog.ErrorContext(ctx, "[GraphQL] resolver failed",
			slog.String("path", path.String()),
			slog.Any("error", err))
	}
	return &gqlerror.Error{
		Message:    msg,
		Path:       path,
		Extensions: map[string]interface{}{"code": code},
	}
}
