package memstore

import (
	"context"
	"sort"
	"time"

	groupstore "github.com/dalemusser/jamiifunds/internal/app/store/groups"
	membershipstore "github.com/dalemusser/jamiifunds/internal/app/store/memberships"
	personstore "github.com/dalemusser/jamiifunds/internal/app/store/persons"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Groups struct{ db *DB }

func (s Groups) Create(_ context.Context, g models.Group) (models.Group, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g.NameCI = text.Fold(g.Name)
	for _, other := range s.db.groups {
		if other.NameCI == g.NameCI {
			return models.Group{}, groupstore.ErrDuplicateGroupName
		}
	}
	now := time.Now().UTC()
	g.ID = primitive.NewObjectID()
	g.Active = true
	g.CreatedAt = now
	g.UpdatedAt = now
	s.db.groups[g.ID] = g
	return g, nil
}

func (s Groups) GetByID(_ context.Context, id primitive.ObjectID) (models.Group, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g, ok := s.db.groups[id]
	if !ok {
		return models.Group{}, mongo.ErrNoDocuments
	}
	return g, nil
}

func (s Groups) SetActive(_ context.Context, id primitive.ObjectID, active bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g, ok := s.db.groups[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	g.Active = active
	g.UpdatedAt = time.Now().UTC()
	s.db.groups[id] = g
	return nil
}

func (s Groups) Delete(_ context.Context, id primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.groups[id]; !ok {
		return 0, nil
	}
	delete(s.db.groups, id)
	return 1, nil
}

type Persons struct{ db *DB }

func (s Persons) Create(_ context.Context, p models.Person) (models.Person, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, other := range s.db.persons {
		if other.Phone == p.Phone {
			return models.Person{}, personstore.ErrDuplicatePhone
		}
		if other.NationalID == p.NationalID {
			return models.Person{}, personstore.ErrDuplicateNationalID
		}
	}
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	p.FullNameCI = text.Fold(p.FullName)
	p.Active = true
	p.CreatedAt = now
	p.UpdatedAt = now
	s.db.persons[p.ID] = p
	return p, nil
}

func (s Persons) GetByID(_ context.Context, id primitive.ObjectID) (models.Person, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.persons[id]
	if !ok {
		return models.Person{}, mongo.ErrNoDocuments
	}
	return p, nil
}

func (s Persons) GetByPhone(_ context.Context, phone string) (models.Person, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.persons {
		if p.Phone == phone {
			return p, nil
		}
	}
	return models.Person{}, mongo.ErrNoDocuments
}

func (s Persons) SetActive(_ context.Context, id primitive.ObjectID, active bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.persons[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	p.Active = active
	p.UpdatedAt = time.Now().UTC()
	s.db.persons[id] = p
	return nil
}

func (s Persons) Delete(_ context.Context, id primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.persons[id]; !ok {
		return 0, nil
	}
	delete(s.db.persons, id)
	return 1, nil
}

type Memberships struct{ db *DB }

func (s Memberships) Create(_ context.Context, m models.Membership) (models.Membership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, other := range s.db.memberships {
		if other.GroupID == m.GroupID && other.PersonID == m.PersonID {
			return models.Membership{}, membershipstore.ErrDuplicateMembership
		}
	}
	m.ID = primitive.NewObjectID()
	m.Active = true
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	s.db.memberships[m.ID] = m
	return m, nil
}

func (s Memberships) GetByID(_ context.Context, id primitive.ObjectID) (models.Membership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.memberships[id]
	if !ok {
		return models.Membership{}, mongo.ErrNoDocuments
	}
	return m, nil
}

func (s Memberships) list(match func(models.Membership) bool) []models.Membership {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Membership
	for _, m := range s.db.memberships {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return idLess(out[i].ID, out[j].ID)
	})
	return out
}

func (s Memberships) ListByGroup(_ context.Context, groupID primitive.ObjectID) ([]models.Membership, error) {
	return s.list(func(m models.Membership) bool { return m.GroupID == groupID }), nil
}

func (s Memberships) ListByPerson(_ context.Context, personID primitive.ObjectID) ([]models.Membership, error) {
	return s.list(func(m models.Membership) bool { return m.PersonID == personID }), nil
}

func (s Memberships) update(id primitive.ObjectID, fn func(*models.Membership)) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.memberships[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	fn(&m)
	s.db.memberships[id] = m
	return nil
}

func (s Memberships) SetActive(_ context.Context, id primitive.ObjectID, active bool) error {
	return s.update(id, func(m *models.Membership) { m.Active = active })
}

func (s Memberships) SetAdmin(_ context.Context, id primitive.ObjectID, isAdmin bool) error {
	return s.update(id, func(m *models.Membership) { m.IsAdmin = isAdmin })
}

func (s Memberships) DeleteByIDs(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id := range idSet(ids) {
		if _, ok := s.db.memberships[id]; ok {
			delete(s.db.memberships, id)
			n++
		}
	}
	return n, nil
}
