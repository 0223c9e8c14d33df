package attempt

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mind-engage/mindengage-quiz/internal/fault"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
)

// MongoStore embeds answers in the attempt document, so recording an answer
// and advancing the cursor is one single-document update.
type MongoStore struct {
	attempts *mongo.Collection
	grades   *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{attempts: db.Collection("attempts"), grades: db.Collection("answer_grades")}
}

// EnsureIndexes creates the uniqueness and lookup indexes the store relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.attempts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subject_id", Value: 1}, {Key: "quiz_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fault.Dependency(err, "attempt indexes")
	}
	_, err = s.grades.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "attempt_id", Value: 1}}})
	return fault.Dependency(err, "grade indexes")
}

type answerDoc struct {
	QuestionID   string `bson:"question_id"`
	Seq          int    `bson:"seq"`
	Kind         string `bson:"kind"`
	Payload      string `bson:"payload"`
	IsCorrect    bool   `bson:"is_correct"`
	PointsEarned int    `bson:"points_earned"`
	NeedsManual  bool   `bson:"needs_manual"`
	Expired      bool   `bson:"expired"`
	TimeTakenSec int    `bson:"time_taken_sec"`
	AnsweredAt   int64  `bson:"answered_at"`
}

type attemptDoc struct {
	ID                string      `bson:"_id"`
	QuizID            string      `bson:"quiz_id"`
	SubjectID         string      `bson:"subject_id"`
	Status            string      `bson:"status"`
	CreatedAt         int64       `bson:"created_at"`
	CompletedAt       *int64      `bson:"completed_at,omitempty"`
	Score             float64     `bson:"score"`
	Result            string      `bson:"result"`
	Cursor            int         `bson:"cursor"`
	QuestionStartedAt int64       `bson:"question_started_at"`
	Version           int64       `bson:"version"`
	Answers           []answerDoc `bson:"answers"`
}

type gradeDoc struct {
	ID         string `bson:"_id"`
	AttemptID  string `bson:"attempt_id"`
	QuestionID string `bson:"question_id"`
	IsCorrect  bool   `bson:"is_correct"`
	Points     int    `bson:"points"`
	Feedback   string `bson:"feedback"`
	GradedBy   string `bson:"graded_by"`
	GradedAt   int64  `bson:"graded_at"`
}

func (d attemptDoc) attempt() Attempt {
	a := Attempt{
		ID:                d.ID,
		QuizID:            d.QuizID,
		SubjectID:         d.SubjectID,
		Status:            Status(d.Status),
		CreatedAt:         fromMillis(d.CreatedAt),
		Score:             d.Score,
		Result:            scoring.Result(d.Result),
		Cursor:            d.Cursor,
		QuestionStartedAt: fromMillis(d.QuestionStartedAt),
		Version:           d.Version,
	}
	if d.CompletedAt != nil {
		t := fromMillis(*d.CompletedAt)
		a.CompletedAt = &t
	}
	return a
}

// stateFields are the mutable attempt fields written by UpdateAttempt.
func stateFields(a Attempt) bson.M {
	m := bson.M{
		"status":              string(a.Status),
		"score":               a.Score,
		"result":              string(a.Result),
		"cursor":              a.Cursor,
		"question_started_at": toMillis(a.QuestionStartedAt),
	}
	if a.CompletedAt != nil {
		m["completed_at"] = toMillis(*a.CompletedAt)
	}
	return m
}

func toAnswerDoc(ans Answer) (answerDoc, error) {
	kind, payload, err := grading.Encode(ans.Response)
	if err != nil {
		return answerDoc{}, err
	}
	return answerDoc{
		QuestionID:   ans.QuestionID,
		Seq:          ans.Seq,
		Kind:         string(kind),
		Payload:      string(payload),
		IsCorrect:    ans.IsCorrect,
		PointsEarned: ans.PointsEarned,
		NeedsManual:  ans.NeedsManual,
		Expired:      ans.Expired,
		TimeTakenSec: ans.TimeTakenSec,
		AnsweredAt:   toMillis(ans.AnsweredAt),
	}, nil
}

func (s *MongoStore) CreateAttempt(ctx context.Context, a Attempt) error {
	d := attemptDoc{
		ID: a.ID, QuizID: a.QuizID, SubjectID: a.SubjectID, Status: string(a.Status),
		CreatedAt: toMillis(a.CreatedAt), Score: a.Score, Result: string(a.Result), Cursor: a.Cursor,
		QuestionStartedAt: toMillis(a.QuestionStartedAt), Version: a.Version, Answers: []answerDoc{},
	}
	_, err := s.attempts.InsertOne(ctx, d)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateAttempt
	}
	return fault.Dependency(err, "insert attempt")
}

func (s *MongoStore) load(ctx context.Context, filter bson.M) (attemptDoc, error) {
	var d attemptDoc
	err := s.attempts.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return attemptDoc{}, ErrAttemptNotFound
	}
	if err != nil {
		return attemptDoc{}, fault.Dependency(err, "find attempt")
	}
	return d, nil
}

func (s *MongoStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	d, err := s.load(ctx, bson.M{"_id": id})
	if err != nil {
		return Attempt{}, err
	}
	return d.attempt(), nil
}

func (s *MongoStore) FindAttempt(ctx context.Context, subjectID, quizID string) (Attempt, error) {
	d, err := s.load(ctx, bson.M{"subject_id": subjectID, "quiz_id": quizID})
	if err != nil {
		return Attempt{}, err
	}
	return d.attempt(), nil
}

func (s *MongoStore) UpdateAttempt(ctx context.Context, a Attempt) error {
	res, err := s.attempts.UpdateOne(ctx,
		bson.M{"_id": a.ID, "version": a.Version},
		bson.M{"$set": stateFields(a), "$inc": bson.M{"version": 1}})
	if err != nil {
		return fault.Dependency(err, "update attempt")
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.GetAttempt(ctx, a.ID); err != nil {
		return err
	}
	return ErrVersionConflict
}

func (s *MongoStore) AppendAnswer(ctx context.Context, ans Answer) error {
	doc, err := toAnswerDoc(ans)
	if err != nil {
		return err
	}
	res, err := s.attempts.UpdateOne(ctx,
		bson.M{"_id": ans.AttemptID, "answers.question_id": bson.M{"$ne": ans.QuestionID}, "answers.seq": bson.M{"$ne": ans.Seq}},
		bson.M{"$push": bson.M{"answers": doc}})
	if err != nil {
		return fault.Dependency(err, "append answer")
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.GetAttempt(ctx, ans.AttemptID); err != nil {
		return err
	}
	return ErrDuplicateAnswer
}

func (s *MongoStore) RecordAnswer(ctx context.Context, a Attempt, ans Answer) error {
	doc, err := toAnswerDoc(ans)
	if err != nil {
		return err
	}
	res, err := s.attempts.UpdateOne(ctx,
		bson.M{
			"_id":                 a.ID,
			"version":             a.Version,
			"answers.question_id": bson.M{"$ne": ans.QuestionID},
			"answers.seq":         bson.M{"$ne": ans.Seq},
		},
		bson.M{"$set": stateFields(a), "$inc": bson.M{"version": 1}, "$push": bson.M{"answers": doc}})
	if err != nil {
		return fault.Dependency(err, "record answer")
	}
	if res.MatchedCount == 1 {
		return nil
	}
	cur, err := s.GetAttempt(ctx, a.ID)
	if err != nil {
		return err
	}
	if cur.Version != a.Version {
		return ErrVersionConflict
	}
	return ErrDuplicateAnswer
}

func (s *MongoStore) ListAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	d, err := s.load(ctx, bson.M{"_id": attemptID})
	if err != nil {
		return nil, err
	}
	cur, err := s.grades.Find(ctx, bson.M{"attempt_id": attemptID})
	if err != nil {
		return nil, fault.Dependency(err, "find grades")
	}
	var gs []gradeDoc
	if err := cur.All(ctx, &gs); err != nil {
		return nil, fault.Dependency(err, "decode grades")
	}
	byQuestion := make(map[string]gradeDoc, len(gs))
	for _, g := range gs {
		byQuestion[g.QuestionID] = g
	}

	out := make([]Answer, 0, len(d.Answers))
	for _, ad := range d.Answers {
		r, err := grading.Decode(grading.Kind(ad.Kind), []byte(ad.Payload))
		if err != nil {
			return nil, fault.Dependency(err, "decode answer "+ad.QuestionID)
		}
		ans := Answer{
			AttemptID: attemptID, QuestionID: ad.QuestionID, Seq: ad.Seq, Response: r,
			IsCorrect: ad.IsCorrect, PointsEarned: ad.PointsEarned, NeedsManual: ad.NeedsManual,
			Expired: ad.Expired, TimeTakenSec: ad.TimeTakenSec, AnsweredAt: fromMillis(ad.AnsweredAt),
		}
		if g, ok := byQuestion[ad.QuestionID]; ok {
			ans.Grade = &Grade{IsCorrect: g.IsCorrect, Points: g.Points, Feedback: g.Feedback,
				GradedBy: g.GradedBy, GradedAt: fromMillis(g.GradedAt)}
		}
		out = append(out, ans)
	}
	return out, nil
}

func (s *MongoStore) PutGrade(ctx context.Context, attemptID, questionID string, g Grade) error {
	n, err := s.attempts.CountDocuments(ctx, bson.M{"_id": attemptID, "answers.question_id": questionID})
	if err != nil {
		return fault.Dependency(err, "find answer")
	}
	if n == 0 {
		return ErrAnswerNotFound
	}
	doc := gradeDoc{
		ID: attemptID + "/" + questionID, AttemptID: attemptID, QuestionID: questionID,
		IsCorrect: g.IsCorrect, Points: g.Points, Feedback: g.Feedback, GradedBy: g.GradedBy,
		GradedAt: toMillis(g.GradedAt),
	}
	_, err = s.grades.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return fault.Dependency(err, "upsert grade")
}

func (s *MongoStore) ListAttempts(ctx context.Context, f Filter) ([]Attempt, error) {
	filter := bson.M{}
	if f.QuizID != "" {
		filter["quiz_id"] = f.QuizID
	}
	if f.SubjectID != "" {
		filter["subject_id"] = f.SubjectID
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"answers": 0})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}
	cur, err := s.attempts.Find(ctx, filter, opts)
	if err != nil {
		return nil, fault.Dependency(err, "list attempts")
	}
	var docs []attemptDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fault.Dependency(err, "decode attempts")
	}
	out := make([]Attempt, len(docs))
	for i, d := range docs {
		out[i] = d.attempt()
	}
	return out, nil
}
