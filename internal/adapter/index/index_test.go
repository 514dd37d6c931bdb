package index

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
)

type M = data.M
type A = []any

type IndexTestSuite struct {
	suite.Suite
}

func (s *IndexTestSuite) newIndex(info domain.IndexInfo) *Index {
	idx, err := NewIndex(info)
	s.Require().NoError(err)
	return idx.(*Index)
}

func (s *IndexTestSuite) TestName() {
	s.Equal("a_1_b.c_-1", Name(domain.Sort{{Key: "a", Order: 1}, {Key: "b.c", Order: -1}}))

	idx := s.newIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "tf", Order: 1}}})
	s.Equal("tf_1", idx.Info().Name)

	idx = s.newIndex(domain.IndexInfo{Name: "custom", Keys: domain.Sort{{Key: "tf", Order: 1}}})
	s.Equal("custom", idx.Info().Name)

	_, err := NewIndex(domain.IndexInfo{})
	s.Error(err)
	_, err = NewIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "a..b", Order: 1}}})
	s.Error(err)
}

func (s *IndexTestSuite) TestInsertAndMatch() {
	idx := s.newIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "tf", Order: 1}}})
	doc1 := M{"_id": 1, "tf": "hello"}
	doc2 := M{"_id": 2, "tf": "world"}
	doc3 := M{"_id": 3, "tf": "hello"}
	s.NoError(idx.Insert(doc1, doc2, doc3))

	s.Equal(2, idx.GetNumberOfKeys())
	s.Equal([]domain.Document{doc1, doc3}, idx.GetMatching("hello"))
	s.Equal([]domain.Document{doc1, doc3, doc2}, idx.GetMatching("world", "hello", "hello"))
	s.Empty(idx.GetMatching("bloup"))
}

func (s *IndexTestSuite) TestNestedField() {
	idx := s.newIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "lair.gold", Order: 1}}})
	doc1 := M{"_id": 1, "lair": M{"gold": 5}}
	doc2 := M{"_id": 2}
	s.NoError(idx.Insert(doc1, doc2))
	s.Equal([]domain.Document{doc1}, idx.GetMatching(5))
	s.Equal([]domain.Document{doc2}, idx.GetMatching(nil))
}

func (s *IndexTestSuite) TestUnique() {
	idx := s.newIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "tf", Order: 1}}, Unique: true})
	doc1 := M{"_id": 1, "tf": "hello"}
	doc2 := M{"_id": 2, "tf": "world"}
	doc3 := M{"_id": 3, "tf": "hello"}

	err := idx.Insert(doc1, doc2, doc3)
	var violated *domain.ErrUniqueViolated
	s.ErrorAs(err, &violated)
	s.Equal("tf_1", violated.Index)
	s.Equal("hello", violated.Key)

	// nothing from the failed call stays indexed
	s.Equal(0, idx.GetNumberOfKeys())
	s.Empty(idx.GetMatching("hello"))

	s.NoError(idx.Insert(doc1, doc2))
	s.ErrorAs(idx.Insert(doc3), &violated)
	s.Equal(2, idx.GetNumberOfKeys())
}

func (s *IndexTestSuite) TestUniqueMissingFields() {
	idx := s.newIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "tf", Order: 1}}, Unique: true})
	s.NoError(idx.Insert(M{"_id": 1}))
	var violated *domain.ErrUniqueViolated
	s.ErrorAs(idx.Insert(M{"_id": 2}), &violated)

	sparse := s.newIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "tf", Order: 1}}, Unique: true, Sparse: true})
	s.NoError(sparse.Insert(M{"_id": 1}, M{"_id": 2}, M{"_id": 3, "tf": nil}))
	s.Equal(1, sparse.GetNumberOfKeys())
}

func (s *IndexTestSuite) TestArrays() {
	idx := s.newIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "tags", Order: 1}}, Unique: true})
	doc1 := M{"_id": 1, "tags": A{"a", "b", "a"}}
	doc2 := M{"_id": 2, "tags": A{"c"}}
	s.NoError(idx.Insert(doc1, doc2))
	s.Equal(3, idx.GetNumberOfKeys())
	s.Equal([]domain.Document{doc1}, idx.GetMatching("a", "b"))

	var violated *domain.ErrUniqueViolated
	s.ErrorAs(idx.Insert(M{"_id": 3, "tags": A{"d", "b"}}), &violated)
	s.Empty(idx.GetMatching("d"))
}

func (s *IndexTestSuite) TestCompound() {
	idx := s.newIndex(domain.IndexInfo{
		Keys:   domain.Sort{{Key: "a", Order: 1}, {Key: "b", Order: 1}},
		Unique: true,
	})
	doc1 := M{"_id": 1, "a": 1, "b": "x"}
	doc2 := M{"_id": 2, "a": 1, "b": "y"}
	s.NoError(idx.Insert(doc1, doc2))
	s.Equal([]domain.Document{doc2}, idx.GetMatching(A{1, "y"}))

	var violated *domain.ErrUniqueViolated
	s.ErrorAs(idx.Insert(M{"_id": 3, "a": 1, "b": "x"}), &violated)
}

func (s *IndexTestSuite) TestRemove() {
	idx := s.newIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "tf", Order: 1}}})
	doc1 := M{"_id": 1, "tf": "hello"}
	doc2 := M{"_id": 2, "tf": "hello"}
	s.NoError(idx.Insert(doc1, doc2))

	// a copy with the same _id removes the original
	s.NoError(idx.Remove(M{"_id": 1, "tf": "changed"}))
	s.Equal([]domain.Document{doc2}, idx.GetMatching("hello"))

	s.NoError(idx.Remove(doc2, M{"_id": 9}))
	s.Equal(0, idx.GetNumberOfKeys())
}

func (s *IndexTestSuite) TestUpdate() {
	idx := s.newIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "tf", Order: 1}}, Unique: true})
	doc1 := M{"_id": 1, "tf": "hello"}
	doc2 := M{"_id": 2, "tf": "world"}
	s.NoError(idx.Insert(doc1, doc2))

	newDoc1 := M{"_id": 1, "tf": "bloup"}
	s.NoError(idx.Update(doc1, newDoc1))
	s.Equal([]domain.Document{newDoc1}, idx.GetMatching("bloup"))
	s.Empty(idx.GetMatching("hello"))

	// failed updates restore the old document
	var violated *domain.ErrUniqueViolated
	s.ErrorAs(idx.Update(newDoc1, M{"_id": 1, "tf": "world"}), &violated)
	s.Equal([]domain.Document{newDoc1}, idx.GetMatching("bloup"))
	s.Equal([]domain.Document{doc2}, idx.GetMatching("world"))
}

func (s *IndexTestSuite) TestReset() {
	idx := s.newIndex(domain.IndexInfo{Keys: domain.Sort{{Key: "tf", Order: 1}}})
	s.NoError(idx.Insert(M{"_id": 1, "tf": "hello"}))
	doc := M{"_id": 2, "tf": "world"}
	s.NoError(idx.Reset(doc))
	s.Equal(1, idx.GetNumberOfKeys())
	s.Equal([]domain.Document{doc}, idx.GetMatching("world"))
	s.Empty(idx.GetMatching("hello"))
}

func TestIndexTestSuite(t *testing.T) {
	suite.Run(t, new(IndexTestSuite))
}
