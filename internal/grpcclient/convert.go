package grpcclient

import (
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"

	"github.com/nogcio/wrkr/internal/value"
)

// populateDynamicMessage fills msg's fields from a map Value, following the
// same rules as the Value Model's generic proto codec (spec §4.1): unknown
// fields are skipped, missing fields leave the zero value, repeated fields
// come from list Values.
func populateDynamicMessage(msg *dynamic.Message, v value.Value) error {
	if v.Kind() != value.KindMap {
		return fmt.Errorf("request value must be a map, got %s", v.Kind())
	}
	for _, fd := range msg.GetMessageDescriptor().GetFields() {
		fv, ok := v.MapGet(value.StringKey(fd.GetName()))
		if !ok {
			continue
		}
		if err := setDynamicField(msg, fd, fv); err != nil {
			return fmt.Errorf("field %s: %w", fd.GetName(), err)
		}
	}
	return nil
}

func setDynamicField(msg *dynamic.Message, fd *desc.FieldDescriptor, v value.Value) error {
	if fd.IsRepeated() && !fd.IsMap() {
		items, ok := v.AsList()
		if !ok {
			return fmt.Errorf("expected list")
		}
		for _, item := range items {
			sv, err := scalarToDynamic(fd, item)
			if err != nil {
				return err
			}
			if err := msg.TryAddRepeatedField(fd, sv); err != nil {
				return err
			}
		}
		return nil
	}
	sv, err := scalarToDynamic(fd, v)
	if err != nil {
		return err
	}
	return msg.TrySetField(fd, sv)
}

func scalarToDynamic(fd *desc.FieldDescriptor, v value.Value) (interface{}, error) {
	if fd.GetMessageType() != nil {
		sub := dynamic.NewMessage(fd.GetMessageType())
		if err := populateDynamicMessage(sub, v); err != nil {
			return nil, err
		}
		return sub, nil
	}
	switch fd.GetType().String() {
	case "TYPE_BOOL":
		b, _ := v.AsBool()
		return b, nil
	case "TYPE_STRING":
		s, _ := v.AsString()
		return s, nil
	case "TYPE_BYTES":
		b, _ := v.AsBytes()
		return b, nil
	case "TYPE_FLOAT", "TYPE_DOUBLE":
		f, _ := v.AsF64()
		return f, nil
	case "TYPE_ENUM":
		i, _ := v.AsI64()
		return int32(i), nil
	default:
		// Integer kinds: accept I64 or U64, default zero otherwise.
		if i, ok := v.AsI64(); ok {
			return i, nil
		}
		if u, ok := v.AsU64(); ok {
			return u, nil
		}
		return int64(0), nil
	}
}

// dynamicMessageToValue converts a populated dynamic.Message back into a
// Value, skipping unset fields so that zero-valued scalars round-trip as
// absent rather than explicit zero (matching proto3's own "unset == default"
// semantics as closely as a Value map can).
func dynamicMessageToValue(msg *dynamic.Message) value.Value {
	out := value.EmptyMap()
	for _, fd := range msg.GetKnownFields() {
		if !msg.HasField(fd) {
			continue
		}
		fv := msg.GetField(fd)
		out = out.MapSet(value.StringKey(fd.GetName()), dynamicFieldToValue(fd, fv))
	}
	return out
}

func dynamicFieldToValue(fd *desc.FieldDescriptor, v interface{}) value.Value {
	if fd.IsRepeated() && !fd.IsMap() {
		slice, ok := v.([]interface{})
		if !ok {
			return value.List()
		}
		items := make([]value.Value, len(slice))
		for i, e := range slice {
			items[i] = scalarDynamicToValue(fd, e)
		}
		return value.List(items...)
	}
	return scalarDynamicToValue(fd, v)
}

func scalarDynamicToValue(fd *desc.FieldDescriptor, v interface{}) value.Value {
	if sub, ok := v.(*dynamic.Message); ok {
		return dynamicMessageToValue(sub)
	}
	switch t := v.(type) {
	case bool:
		return value.Bool(t)
	case int32:
		return value.I64(int64(t))
	case int64:
		return value.I64(t)
	case uint32:
		return value.U64(uint64(t))
	case uint64:
		return value.U64(t)
	case float32:
		return value.F64(float64(t))
	case float64:
		return value.F64(t)
	case string:
		return value.String(t)
	case []byte:
		return value.Bytes(t)
	default:
		return value.Null()
	}
}
