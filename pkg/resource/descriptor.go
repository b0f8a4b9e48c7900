package resource

import (
	"maps"
	"slices"
	"time"
)

// Type tags a family of cloud resources.
type Type string

const (
	DynamoDBTable   Type = "aws_dynamodb_table"
	DynamoDBGSI     Type = "aws_dynamodb_gsi"
	APIGatewayStage Type = "aws_apigateway_stage"
	FargateService  Type = "aws_ecs_fargate_service"
)

// KnownTypes lists the resource types with built-in adapters.
func KnownTypes() []Type {
	return []Type{DynamoDBTable, DynamoDBGSI, APIGatewayStage, FargateService}
}

// Descriptor is an immutable snapshot of one resource taken during a scan pass.
// ObservedAt is the snapshot time and the only clock downstream stages consult.
type Descriptor struct {
	Type       Type
	ID         string
	Region     string
	CreatedAt  time.Time
	ObservedAt time.Time

	attrs map[string]Value
}

// NewDescriptor copies attrs so later mutation by the caller is not observed.
func NewDescriptor(t Type, id, region string, createdAt, observedAt time.Time, attrs map[string]Value) Descriptor {
	return Descriptor{
		Type:       t,
		ID:         id,
		Region:     region,
		CreatedAt:  createdAt,
		ObservedAt: observedAt,
		attrs:      maps.Clone(attrs),
	}
}

func (d Descriptor) Attr(name string) (Value, bool) {
	v, ok := d.attrs[name]
	return v, ok
}

func (d Descriptor) Number(name string) (float64, bool) {
	v, ok := d.attrs[name]
	if !ok {
		return 0, false
	}
	return v.Float()
}

func (d Descriptor) Text(name string) (string, bool) {
	v, ok := d.attrs[name]
	if !ok {
		return "", false
	}
	return v.Text()
}

func (d Descriptor) Flag(name string) bool {
	v, ok := d.attrs[name]
	if !ok {
		return false
	}
	b, _ := v.Truth()
	return b
}

// Attributes returns a copy of the attribute map.
func (d Descriptor) Attributes() map[string]Value {
	return maps.Clone(d.attrs)
}

// AttributeNames returns attribute keys in sorted order.
func (d Descriptor) AttributeNames() []string {
	return slices.Sorted(maps.Keys(d.attrs))
}

// AgeDays is the resource age at snapshot time, never negative.
func (d Descriptor) AgeDays() float64 {
	if d.CreatedAt.IsZero() || d.ObservedAt.Before(d.CreatedAt) {
		return 0
	}
	return d.ObservedAt.Sub(d.CreatedAt).Hours() / 24
}

// Key identifies the resource uniquely within a scan.
func (d Descriptor) Key() string {
	return string(d.Type) + "/" + d.Region + "/" + d.ID
}

// With returns a new descriptor whose attributes are overlaid by overrides.
func (d Descriptor) With(overrides map[string]Value) Descriptor {
	next := d
	next.attrs = maps.Clone(d.attrs)
	if next.attrs == nil {
		next.attrs = make(map[string]Value, len(overrides))
	}
	maps.Copy(next.attrs, overrides)
	return next
}
