package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nao1215/estatehub/pkg/event"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

// HandlerProjection は読み取りモデルへの反映を表すハンドラー名。
const HandlerProjection = "Projection"

// defaultConcurrency はバッチ内で同時に処理するイベント数のデフォルト値。
const defaultConcurrency = 8

// HandlerFunc は変更イベント1件を処理する関数。
type HandlerFunc func(ctx context.Context, ev *event.Event) Report

// Projector はディレクトリ系のドキュメントを読み取りモデルに反映する。
type Projector interface {
	// Handles はコレクションを反映対象とするかどうかを返す。
	Handles(collection event.Collection) bool
	// Apply はイベントを読み取りモデルに反映する。
	Apply(ctx context.Context, ev *event.Event) error
}

type routeKey struct {
	collection event.Collection
	kind       event.Kind
}

type route struct {
	name string
	fn   HandlerFunc
}

// Dispatcher は変更イベントを (コレクション, 種別) でハンドラーに振り分ける。
type Dispatcher struct {
	routes      map[routeKey]route
	projector   Projector
	metrics     *telemetry.Metrics
	tracer      trace.Tracer
	concurrency int
}

// DispatcherOption はDispatcherの設定を変更する関数。
type DispatcherOption func(*Dispatcher)

// WithProjector は読み取りモデルへの反映を有効にする。
func WithProjector(p Projector) DispatcherOption {
	return func(d *Dispatcher) {
		d.projector = p
	}
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m *telemetry.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithConcurrency はバッチ内で同時に処理するイベント数を設定する。
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// NewDispatcher はハンドラーの振り分け表を登録したDispatcherを生成する。
func NewDispatcher(h *Handlers, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		routes:      make(map[routeKey]route),
		tracer:      telemetry.Tracer("github.com/nao1215/estatehub/internal/notification"),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.Handle(event.CollectionListings, event.KindCreated, HandlerListingCreated, h.ListingCreated)
	for _, c := range []event.Collection{event.CollectionConstructionRequests, event.CollectionRenovationRequests} {
		d.Handle(c, event.KindCreated, HandlerServiceRequestCreated, h.ServiceRequestCreated)
		d.Handle(c, event.KindUpdated, HandlerServiceRequestStatusChanged, h.ServiceRequestStatusChanged)
	}
	d.Handle(event.CollectionReviews, event.KindCreated, HandlerReviewCreated, h.ReviewCreated)
	d.Handle(event.CollectionSupportMessages, event.KindCreated, HandlerSupportMessageCreated, h.SupportMessageCreated)
	d.Handle(event.CollectionSupportChatMessages, event.KindCreated, HandlerSupportChatMessageCreated, h.SupportChatMessageCreated)
	d.Handle(event.CollectionChatMessages, event.KindCreated, HandlerChatMessageCreated, h.ChatMessageCreated)
	d.Handle(event.CollectionEmailSubscriptions, event.KindCreated, HandlerEmailSubscriptionCreated, h.EmailSubscriptionCreated)
	return d
}

// Handle は (コレクション, 種別) にハンドラーを登録する。既存の登録は上書きされる。
func (d *Dispatcher) Handle(collection event.Collection, kind event.Kind, name string, fn HandlerFunc) {
	d.routes[routeKey{collection: collection, kind: kind}] = route{name: name, fn: fn}
}

// Routed はイベントに対応するハンドラーまたは反映処理があるかどうかを返す。
func (d *Dispatcher) Routed(ev *event.Event) bool {
	if d.projects(ev) {
		return true
	}
	_, ok := d.routes[routeKey{collection: ev.Collection, kind: ev.Kind}]
	return ok
}

func (d *Dispatcher) projects(ev *event.Event) bool {
	return d.projector != nil && d.projector.Handles(ev.Collection)
}

// Dispatch はイベント1件を処理してReportを返す。
// ハンドラー内のパニックは回復してReportのErrに記録する。
func (d *Dispatcher) Dispatch(ctx context.Context, ev *event.Event) Report {
	if d.projects(ev) {
		return d.project(ctx, ev)
	}
	r, ok := d.routes[routeKey{collection: ev.Collection, kind: ev.Kind}]
	if !ok {
		return Report{DocumentPath: ev.DocumentPath, SkipReason: fmt.Sprintf("%s/%s のハンドラーはありません", ev.Collection, ev.Kind)}
	}

	ctx, span := d.tracer.Start(ctx, "notification."+r.name, trace.WithAttributes(
		attribute.String("event.id", ev.ID),
		attribute.Int64("event.seq", ev.Seq),
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("document.path", ev.DocumentPath),
	))
	defer span.End()

	var rep Report
	var pc panics.Catcher
	pc.Try(func() { rep = r.fn(ctx, ev) })
	if rec := pc.Recovered(); rec != nil {
		rep = Report{Handler: r.name, DocumentPath: ev.DocumentPath, Err: fmt.Errorf("ハンドラーがパニック: %w", rec.AsError())}
	}
	if rep.Handler == "" {
		rep.Handler = r.name
	}

	span.SetAttributes(
		attribute.Int("notifications.written", rep.Written()),
		attribute.Int("notifications.failed", rep.Failed()),
	)
	if rep.Err != nil {
		span.RecordError(rep.Err)
		span.SetStatus(codes.Error, rep.Err.Error())
	}
	d.record(rep)
	return rep
}

// DispatchBatch はイベントのまとまりを処理する。
// 読み取りモデルへの反映を先に順番どおり行い、残りのイベントは最大concurrency件ずつ並行に処理する。
// 並行処理したイベントの間に順序の保証はない。Reportは入力と同じ順序で返る。
func (d *Dispatcher) DispatchBatch(ctx context.Context, events []*event.Event) []Report {
	reports := make([]Report, len(events))
	p := pool.New().WithMaxGoroutines(d.concurrency)
	var pending []int
	for i, ev := range events {
		if d.projects(ev) {
			reports[i] = d.project(ctx, ev)
			continue
		}
		pending = append(pending, i)
	}
	for _, i := range pending {
		p.Go(func() {
			reports[i] = d.Dispatch(ctx, events[i])
		})
	}
	p.Wait()
	return reports
}

func (d *Dispatcher) project(ctx context.Context, ev *event.Event) Report {
	rep := Report{Handler: HandlerProjection, DocumentPath: ev.DocumentPath}
	if err := d.projector.Apply(ctx, ev); err != nil {
		rep.Err = fmt.Errorf("読み取りモデルへの反映に失敗: %w", err)
	}
	d.record(rep)
	return rep
}

func (d *Dispatcher) record(rep Report) {
	d.metrics.HandlerEvent(rep.Handler, rep.Outcome())
	// 反映処理の成功は件数が多いので出力しない
	if rep.Handler == HandlerProjection && rep.Err == nil {
		return
	}
	log.Printf("[Dispatcher] %s", rep)
}
