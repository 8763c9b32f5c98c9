package handlers

import (
	"log/slog"
	"net/http"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/handsomefox/kinochat/internal/logger"
)

func writeJSON(w http.ResponseWriter, status int, payload proto.Message) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if payload == nil {
		w.WriteHeader(status)
		return
	}

	b, err := protojson.Marshal(payload)
	if err != nil {
		slog.Warn("write json failed", logger.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		slog.Debug("write response failed", logger.Error(err))
	}
}

func errorBody(msg string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"error": structpb.NewStringValue(msg),
	}}
}

func stringList(items []string) *structpb.Value {
	values := make([]*structpb.Value, 0, len(items))
	for _, s := range items {
		values = append(values, structpb.NewStringValue(s))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func badRequest(msg string) error  { return &Error{Status: http.StatusBadRequest, Message: msg} }
func unavailable(msg string) error { return &Error{Status: http.StatusServiceUnavailable, Message: msg} }
