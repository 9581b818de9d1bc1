package http

import (
	"net/http"
	"strconv"

	"clinicbook/pkg/config"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/model"
)

const (
	HeaderActorRole = "X-Actor-Role"
	HeaderActorID   = "X-Actor-Id"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = int64(v)
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// ExtractActor reads the authenticated actor descriptor set by the upstream
// identity layer. The booking core trusts these headers as given.
func ExtractActor(r *http.Request) (model.Actor, error) {
	actor := model.Actor{
		Role:      model.Role(r.Header.Get(HeaderActorRole)),
		SubjectID: r.Header.Get(HeaderActorID),
	}
	if !actor.Valid() {
		return model.Actor{}, apperrors.Unauthorized("missing or malformed actor descriptor")
	}
	return actor, nil
}
