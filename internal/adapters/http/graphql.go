package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/poimap/internal/core/domain"
	"github.com/samirrijal/poimap/internal/core/usecases"
)

// buildSchema creates the read-only GraphQL schema over mounted sessions.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	viewportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Viewport",
		Fields: graphql.Fields{
			"center":              &graphql.Field{Type: coordinateType},
			"last_fetched_center": &graphql.Field{Type: coordinateType},
			"user_location":       &graphql.Field{Type: coordinateType},
			"using_default":       &graphql.Field{Type: graphql.Boolean},
		},
	})

	statusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Status",
		Fields: graphql.Fields{
			"code":    &graphql.Field{Type: graphql.String},
			"message": &graphql.Field{Type: graphql.String},
			"updated_at": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					st, _ := p.Source.(domain.Status)
					if st.UpdatedAt.IsZero() {
						return nil, nil
					}
					return st.UpdatedAt.Format(time.RFC3339), nil
				},
			},
		},
	})

	poiType := graphql.NewObject(graphql.ObjectConfig{
		Name: "POI",
		Fields: graphql.Fields{
			"key":         &graphql.Field{Type: graphql.String},
			"variant":     &graphql.Field{Type: graphql.String},
			"label":       &graphql.Field{Type: graphql.String},
			"position":    &graphql.Field{Type: coordinateType},
			"detail_path": &graphql.Field{Type: graphql.String},
		},
	})

	popupType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Popup",
		Fields: graphql.Fields{
			"handle":   &graphql.Field{Type: graphql.String},
			"position": &graphql.Field{Type: coordinateType},
			"variant": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					op, _ := p.Source.(domain.OpenPopup)
					return string(op.Content.Variant), nil
				},
			},
			"title": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					op, _ := p.Source.(domain.OpenPopup)
					return op.Content.Title, nil
				},
			},
			"detail_path": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					op, _ := p.Source.(domain.OpenPopup)
					return op.Content.DetailPath, nil
				},
			},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"viewport":    &graphql.Field{Type: viewportType},
			"status":      &graphql.Field{Type: statusType},
			"generation":  &graphql.Field{Type: graphql.Int},
			"stale_drops": &graphql.Field{Type: graphql.Int},
			"places": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(usecases.SessionSnapshot).Counts[domain.VariantGeneral], nil
				},
			},
			"stations": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(usecases.SessionSnapshot).Counts[domain.VariantCharging], nil
				},
			},
			"pois": &graphql.Field{
				Type:        graphql.NewList(poiType),
				Description: "Registered POIs of a variant in fetch order",
				Args: graphql.FieldConfigArgument{
					"variant": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					variant, err := domain.ParseVariant(p.Args["variant"].(string))
					if err != nil {
						return nil, err
					}
					s, err := deps.Maps.Get(p.Source.(usecases.SessionSnapshot).ID)
					if err != nil {
						return nil, err
					}
					pois, err := s.POIs(p.Context, variant)
					if err != nil {
						return nil, err
					}
					views := make([]POIView, 0, len(pois))
					for _, poi := range pois {
						views = append(views, poiView(poi))
					}
					return views, nil
				},
			},
			"popups": &graphql.Field{
				Type: graphql.NewList(popupType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := deps.Maps.Get(p.Source.(usecases.SessionSnapshot).ID)
					if err != nil {
						return nil, err
					}
					return s.Popups(p.Context)
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"sessions": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "IDs of every mounted session",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Maps.IDs(), nil
				},
			},
			"session": &graphql.Field{
				Type:        sessionType,
				Description: "Get a mounted session by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := deps.Maps.Get(p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return s.Snapshot(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
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
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), sessionCallTimeout)
		defer cancel()

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        ctx,
		})

		return c.JSON(result)
	}
}
