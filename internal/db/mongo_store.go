package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/simulacroapp/simulacro/internal/api"
	"github.com/simulacroapp/simulacro/internal/models"
	"github.com/simulacroapp/simulacro/internal/services"
)

// sessionDoc adds the partial-index marker next to the session fields.
// code_active is set while a coded session is not completed, so the unique
// index on access_code only ever covers live codes.
type sessionDoc struct {
	models.Session `bson:",inline"`
	CodeActive     bool `bson:"code_active,omitempty"`
}

// MongoStore is the production Store. Every mutating call is a single
// guarded document update; unique indexes are the backstop for the
// check-then-write races.
type MongoStore struct {
	client      *mongo.Client
	sessions    *mongo.Collection
	responses   *mongo.Collection
	evaluations *mongo.Collection
	users       *mongo.Collection
}

var _ api.Store = (*MongoStore)(nil)

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	database := client.Database(dbName)
	s := &MongoStore{
		client:      client,
		sessions:    database.Collection("sessions"),
		responses:   database.Collection("responses"),
		evaluations: database.Collection("evaluations"),
		users:       database.Collection("users"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "access_code", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "code_active", Value: true}}),
		},
		{Keys: bson.D{{Key: "participants.user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("session indexes: %w", err)
	}
	_, err = s.responses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "session_id", Value: 1},
			{Key: "user_id", Value: 1},
			{Key: "round_id", Value: 1},
			{Key: "question_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("response index: %w", err)
	}
	_, err = s.evaluations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("evaluation index: %w", err)
	}
	_, err = s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "nickname", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertSession(ctx context.Context, sess *models.Session) (bool, error) {
	doc := sessionDoc{Session: *sess}
	doc.CodeActive = sess.AccessCode != "" && sess.Status != models.StatusCompleted
	_, err := s.sessions.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert session: %w", err)
	}
	return true, nil
}

func (s *MongoStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &doc.Session, nil
}

func (s *MongoStore) ListSessionsForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	cur, err := s.sessions.Find(ctx,
		bson.D{{Key: "participants.user_id", Value: userID}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer cur.Close(ctx)
	out := []*models.Session{}
	for cur.Next(ctx) {
		var doc sessionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		sess := doc.Session
		out = append(out, &sess)
	}
	return out, cur.Err()
}

func (s *MongoStore) FindSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.D{
		{Key: "access_code", Value: code},
		{Key: "status", Value: bson.D{{Key: "$ne", Value: models.StatusCompleted}}},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session by code: %w", err)
	}
	return &doc.Session, nil
}

func (s *MongoStore) SetSessionStatus(ctx context.Context, id, status string, trainingTimer models.TimerState, startedAt, completedAt *time.Time) error {
	set := bson.D{
		{Key: "status", Value: status},
		{Key: "training_timer", Value: trainingTimer},
	}
	if startedAt != nil {
		set = append(set, bson.E{Key: "started_at", Value: startedAt})
	}
	if completedAt != nil {
		set = append(set, bson.E{Key: "completed_at", Value: completedAt})
	}
	update := bson.D{{Key: "$set", Value: set}}
	if status == models.StatusCompleted {
		// A completed session releases its code for reuse.
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "code_active", Value: ""}}})
	}
	res, err := s.sessions.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	if res.MatchedCount == 0 {
		return services.NewNotFoundError("sesión no encontrada")
	}
	return nil
}

func (s *MongoStore) SetCurrentRound(ctx context.Context, id string, round int, roundTimer models.TimerState) error {
	res, err := s.sessions.UpdateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "current_round", Value: round},
		{Key: "round_timer", Value: roundTimer},
	}}})
	if err != nil {
		return fmt.Errorf("set current round: %w", err)
	}
	if res.MatchedCount == 0 {
		return services.NewNotFoundError("sesión no encontrada")
	}
	return nil
}

func (s *MongoStore) SetRoundTimer(ctx context.Context, id string, t models.TimerState) error {
	res, err := s.sessions.UpdateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "round_timer", Value: t},
	}}})
	if err != nil {
		return fmt.Errorf("set round timer: %w", err)
	}
	if res.MatchedCount == 0 {
		return services.NewNotFoundError("sesión no encontrada")
	}
	return nil
}

// hasFreeSlot matches only when the accepted participants have not reached
// max_participants. Putting it in the update filter makes capacity part of
// the same atomic document match as the rest of the guard.
func hasFreeSlot() bson.E {
	return bson.E{Key: "$expr", Value: bson.D{{Key: "$lt", Value: bson.A{
		bson.D{{Key: "$size", Value: bson.D{{Key: "$filter", Value: bson.D{
			{Key: "input", Value: "$participants"},
			{Key: "as", Value: "p"},
			{Key: "cond", Value: bson.D{{Key: "$eq", Value: bson.A{"$$p.status", models.ParticipantAccepted}}}},
		}}}}},
		"$max_participants",
	}}}}
}

func (s *MongoStore) AppendParticipant(ctx context.Context, sessionID string, rec models.ParticipantRecord) (bool, error) {
	filter := bson.D{
		{Key: "_id", Value: sessionID},
		{Key: "participants.user_id", Value: bson.D{{Key: "$ne", Value: rec.UserID}}},
	}
	if rec.Status == models.ParticipantAccepted {
		filter = append(filter, hasFreeSlot())
	}
	res, err := s.sessions.UpdateOne(ctx, filter,
		bson.D{{Key: "$push", Value: bson.D{{Key: "participants", Value: rec}}}})
	if err != nil {
		return false, fmt.Errorf("append participant: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *MongoStore) UpdateParticipantStatus(ctx context.Context, sessionID, userID, fromStatus, toStatus string, respondedAt time.Time) (bool, error) {
	set := bson.D{
		{Key: "participants.$.status", Value: toStatus},
		{Key: "participants.$.responded_at", Value: respondedAt},
	}
	filter := bson.D{
		{Key: "_id", Value: sessionID},
		{Key: "participants", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "user_id", Value: userID},
			{Key: "status", Value: fromStatus},
		}}}},
	}
	if toStatus == models.ParticipantAccepted {
		set = append(set, bson.E{Key: "participants.$.joined_at", Value: respondedAt})
		filter = append(filter, hasFreeSlot())
	}
	res, err := s.sessions.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return false, fmt.Errorf("update participant status: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *MongoStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.sessions.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return false, nil
	}
	if _, err := s.responses.DeleteMany(ctx, bson.D{{Key: "session_id", Value: id}}); err != nil {
		return true, fmt.Errorf("delete session responses: %w", err)
	}
	if _, err := s.evaluations.DeleteMany(ctx, bson.D{{Key: "session_id", Value: id}}); err != nil {
		return true, fmt.Errorf("delete session evaluations: %w", err)
	}
	return true, nil
}

func (s *MongoStore) AccessCodeInUse(ctx context.Context, code string) (bool, error) {
	err := s.sessions.FindOne(ctx, bson.D{
		{Key: "access_code", Value: code},
		{Key: "code_active", Value: true},
	}, options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check access code: %w", err)
	}
	return true, nil
}

func (s *MongoStore) GetResponse(ctx context.Context, sessionID, userID, roundID, questionID string) (*models.Response, error) {
	var r models.Response
	err := s.responses.FindOne(ctx, bson.D{
		{Key: "session_id", Value: sessionID},
		{Key: "user_id", Value: userID},
		{Key: "round_id", Value: roundID},
		{Key: "question_id", Value: questionID},
	}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	return &r, nil
}

func (s *MongoStore) InsertResponse(ctx context.Context, r *models.Response) (bool, error) {
	_, err := s.responses.InsertOne(ctx, r)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert response: %w", err)
	}
	return true, nil
}

func (s *MongoStore) ListResponsesBySession(ctx context.Context, sessionID, roundID string) ([]*models.Response, error) {
	filter := bson.D{{Key: "session_id", Value: sessionID}}
	if roundID != "" {
		filter = append(filter, bson.E{Key: "round_id", Value: roundID})
	}
	return s.listResponses(ctx, filter)
}

func (s *MongoStore) ListResponsesByUser(ctx context.Context, sessionID, userID string) ([]*models.Response, error) {
	return s.listResponses(ctx, bson.D{
		{Key: "session_id", Value: sessionID},
		{Key: "user_id", Value: userID},
	})
}

func (s *MongoStore) listResponses(ctx context.Context, filter bson.D) ([]*models.Response, error) {
	cur, err := s.responses.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer cur.Close(ctx)
	out := []*models.Response{}
	for cur.Next(ctx) {
		var r models.Response
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}

func (s *MongoStore) GetEvaluation(ctx context.Context, sessionID, userID string) (*models.Evaluation, error) {
	var e models.Evaluation
	err := s.evaluations.FindOne(ctx, bson.D{
		{Key: "session_id", Value: sessionID},
		{Key: "user_id", Value: userID},
	}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	return &e, nil
}

func (s *MongoStore) InsertEvaluation(ctx context.Context, e *models.Evaluation) (bool, error) {
	_, err := s.evaluations.InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert evaluation: %w", err)
	}
	return true, nil
}

func (s *MongoStore) ListEvaluationsBySession(ctx context.Context, sessionID string) ([]*models.Evaluation, error) {
	cur, err := s.evaluations.Find(ctx,
		bson.D{{Key: "session_id", Value: sessionID}},
		options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer cur.Close(ctx)
	out := []*models.Evaluation{}
	for cur.Next(ctx) {
		var e models.Evaluation
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, cur.Err()
}

func (s *MongoStore) AddUser(ctx context.Context, u *models.User) error {
	_, err := s.users.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return services.NewConflictError("el correo o el apodo ya está registrado")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *MongoStore) FindUserByNickname(ctx context.Context, nickname string) (*models.User, error) {
	return s.findUser(ctx, bson.D{{Key: "nickname", Value: nickname}})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.D) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}
