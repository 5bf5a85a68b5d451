package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to the marker services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
		},
	})

	markerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Marker",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"coordinate": &graphql.Field{Type: coordinateType},
			"address":    &graphql.Field{Type: graphql.String},
			"photos":     &graphql.Field{Type: graphql.NewList(graphql.String)},
			"imageURLs":  &graphql.Field{Type: graphql.NewList(graphql.String)},
			"createdAt":  &graphql.Field{Type: graphql.String},
		},
	})

	uploadType := graphql.NewObject(graphql.ObjectConfig{
		Name: "UploadTask",
		Fields: graphql.Fields{
			"markerId":  &graphql.Field{Type: graphql.String},
			"photoRef":  &graphql.Field{Type: graphql.String},
			"status":    &graphql.Field{Type: graphql.String},
			"progress":  &graphql.Field{Type: graphql.Float},
			"remoteURL": &graphql.Field{Type: graphql.String},
			"error":     &graphql.Field{Type: graphql.String},
			"attempt":   &graphql.Field{Type: graphql.Int},
			"coalesced": &graphql.Field{Type: graphql.Boolean},
		},
	})

	observerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Observer",
		Fields: graphql.Fields{
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
			"accuracy":  &graphql.Field{Type: graphql.Float},
			"address":   &graphql.Field{Type: graphql.String},
			"loading":   &graphql.Field{Type: graphql.Boolean},
			"running":   &graphql.Field{Type: graphql.Boolean},
			"error":     &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"markers": &graphql.Field{
				Type:        graphql.NewList(markerType),
				Description: "All markers of the session, in display order",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					markers := deps.Markers.Markers()
					out := make([]map[string]interface{}, 0, len(markers))
					for _, m := range markers {
						out = append(out, markerFields(m))
					}
					return out, nil
				},
			},
			"marker": &graphql.Field{
				Type:        markerType,
				Description: "Get a marker by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					m, err := deps.Markers.Marker(p.Args["id"].(string))
					if errors.Is(err, domain.ErrMarkerNotFound) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return markerFields(m), nil
				},
			},
			"uploads": &graphql.Field{
				Type:        graphql.NewList(uploadType),
				Description: "Upload tasks of a marker",
				Args: graphql.FieldConfigArgument{
					"markerId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					tasks := deps.Uploads.Tasks(p.Args["markerId"].(string))
					out := make([]map[string]interface{}, 0, len(tasks))
					for _, t := range tasks {
						out = append(out, uploadFields(t, false))
					}
					return out, nil
				},
			},
			"observer": &graphql.Field{
				Type:        observerType,
				Description: "Observer position and address",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return observerFields(deps.Tracker.Snapshot()), nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"placeMarker": &graphql.Field{
				Type:        markerType,
				Description: "Place a marker at a coordinate",
				Args: graphql.FieldConfigArgument{
					"latitude":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"longitude": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					m, err := deps.Markers.PlaceMarker(p.Context, domain.Coordinate{
						Latitude:  p.Args["latitude"].(float64),
						Longitude: p.Args["longitude"].(float64),
					})
					if err != nil {
						return nil, err
					}
					return markerFields(m), nil
				},
			},
			"attachPhoto": &graphql.Field{
				Type:        uploadType,
				Description: "Queue a photo upload for a marker",
				Args: graphql.FieldConfigArgument{
					"markerId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"photoRef": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["markerId"].(string)
					if _, err := deps.Markers.Marker(id); err != nil {
						return nil, err
					}
					task, started := deps.Uploads.Enqueue(p.Context, id, p.Args["photoRef"].(string))
					return uploadFields(task, !started), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

func markerFields(m domain.Marker) map[string]interface{} {
	return map[string]interface{}{
		"id": m.ID,
		"coordinate": map[string]interface{}{
			"latitude":  m.Coordinate.Latitude,
			"longitude": m.Coordinate.Longitude,
		},
		"address":   m.Address,
		"photos":    m.PhotoRefs,
		"imageURLs": m.ImageURLs,
		"createdAt": m.CreatedAt.Format(time.RFC3339),
	}
}

func uploadFields(t domain.UploadTask, coalesced bool) map[string]interface{} {
	return map[string]interface{}{
		"markerId":  t.MarkerID,
		"photoRef":  t.PhotoRef,
		"status":    string(t.Status),
		"progress":  t.Progress,
		"remoteURL": t.RemoteURL,
		"error":     t.Error,
		"attempt":   t.Attempt,
		"coalesced": coalesced,
	}
}

func observerFields(s usecases.ObserverState) map[string]interface{} {
	out := map[string]interface{}{
		"loading": s.Loading,
		"running": s.Running,
		"error":   s.Err,
	}
	if s.Position != nil {
		out["latitude"] = s.Position.Latitude
		out["longitude"] = s.Position.Longitude
		out["accuracy"] = s.Position.Accuracy
		out["address"] = s.Address.String()
	}
	return out
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
