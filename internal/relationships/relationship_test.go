package relationships

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/kizuna/internal/entities"
)

func TestRelationship_InverseKeys(t *testing.T) {
	s := newFakeStore()
	post := ref("post", "1")

	assert.Equal(t, "post", s.rel(t, post, "comments").InverseKey())
	assert.Equal(t, "posts", s.rel(t, post, "author").InverseKey())
	assert.Equal(t, ImplicitKey("post"), s.rel(t, post, "tags").InverseKey())
	assert.Equal(t, ImplicitKey("post"), s.rel(t, post, "attachments").InverseKey())
	assert.True(t, IsImplicitKey(s.rel(t, post, "tags").InverseKey()))
}

func TestRelationship_OneToOneMirrorsInverse(t *testing.T) {
	s := newFakeStore()
	p1, a1, a2 := ref("person", "1"), ref("address", "1"), ref("address", "2")

	address := s.rel(t, p1, "address")
	require.NoError(t, address.AddRecord(a1))

	got, ok := s.rel(t, a1, "person").InverseRecord()
	require.True(t, ok)
	assert.Equal(t, p1, got)

	require.NoError(t, address.Sync(a2))

	current, ok := address.InverseRecord()
	require.True(t, ok)
	assert.Equal(t, a2, current)
	assert.Equal(t, 1, address.Members().Size())
	_, ok = s.rel(t, a1, "person").InverseRecord()
	assert.False(t, ok, "old address must lose its person")
	got, _ = s.rel(t, a2, "person").InverseRecord()
	assert.Equal(t, p1, got)
}

func TestRelationship_OneToOneAddingSameRecordIsNoop(t *testing.T) {
	s := newFakeStore()
	p1, a1 := ref("person", "1"), ref("address", "1")
	owner := s.owner(p1)

	address := s.rel(t, p1, "address")
	require.NoError(t, address.AddRecord(a1))
	changes := len(owner.changes)

	require.NoError(t, address.AddRecord(a1))
	assert.Len(t, owner.changes, changes)
}

func TestRelationship_OneToOneRejectsWrongType(t *testing.T) {
	s := newFakeStore()
	address := s.rel(t, ref("person", "1"), "address")

	err := address.AddRecord(ref("comment", "1"))
	require.ErrorIs(t, err, ErrValidation)
	assert.True(t, address.Members().IsEmpty())
}

func TestRelationship_RollbackRestoresOneToOne(t *testing.T) {
	s := newFakeStore()
	p1, a1, a2 := ref("person", "1"), ref("address", "1"), ref("address", "2")
	owner := s.owner(p1)
	owner.server["address"] = []entities.RecordRef{a1}

	address := s.rel(t, p1, "address")
	address.SetServerMembers([]entities.RecordRef{a1})
	require.NoError(t, address.Sync(a1))
	require.NoError(t, address.Sync(a2))
	assert.True(t, address.IsDirty())

	require.NoError(t, address.Rollback())

	current, ok := address.InverseRecord()
	require.True(t, ok)
	assert.Equal(t, a1, current)
	assert.False(t, address.IsDirty())
	got, _ := s.rel(t, a1, "person").InverseRecord()
	assert.Equal(t, p1, got)
	_, ok = s.rel(t, a2, "person").InverseRecord()
	assert.False(t, ok)
}

func TestRelationship_RollbackWithoutChangesIsQuiet(t *testing.T) {
	s := newFakeStore()
	post := ref("post", "1")
	c1, c2 := ref("comment", "1"), ref("comment", "2")
	owner := s.owner(post)
	owner.server["comments"] = []entities.RecordRef{c1, c2}

	comments := s.rel(t, post, "comments")
	require.NoError(t, comments.Sync([]entities.RecordRef{c1, c2}))
	changes := len(owner.changes)

	require.NoError(t, comments.Rollback())
	assert.Equal(t, []entities.RecordRef{c1, c2}, comments.Members().ToArray())
	assert.Len(t, owner.changes, changes)
}

func TestRelationship_OneToManyMirrorsInverse(t *testing.T) {
	s := newFakeStore()
	p1, p2 := ref("post", "1"), ref("post", "2")
	c1, c2 := ref("comment", "1"), ref("comment", "2")

	comments := s.rel(t, p1, "comments")
	require.NoError(t, comments.AddRecords([]entities.RecordRef{c1, c2}))

	got, _ := s.rel(t, c1, "post").InverseRecord()
	assert.Equal(t, p1, got)

	require.NoError(t, s.rel(t, c1, "post").Sync(p2))

	assert.Equal(t, []entities.RecordRef{c2}, comments.Members().ToArray())
	assert.Equal(t, []entities.RecordRef{c1}, s.rel(t, p2, "comments").Members().ToArray())
}

func TestRelationship_OneToManyRejectsWrongType(t *testing.T) {
	s := newFakeStore()
	comments := s.rel(t, ref("post", "1"), "comments")
	require.NoError(t, comments.AddRecord(ref("comment", "1")))

	err := comments.AddRecord(ref("person", "1"))
	require.ErrorIs(t, err, ErrValidation)

	err = comments.Sync([]entities.RecordRef{ref("comment", "2"), ref("person", "1")})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []entities.RecordRef{ref("comment", "1")}, comments.Members().ToArray())
}

func TestRelationship_PolymorphicAcceptsAnyType(t *testing.T) {
	s := newFakeStore()
	attachments := s.rel(t, ref("post", "1"), "attachments")

	require.NoError(t, attachments.AddRecords([]entities.RecordRef{ref("comment", "1"), ref("person", "1")}))
	assert.Equal(t, 2, attachments.Members().Size())

	implicit := s.owner(ref("person", "1")).table.Get(ImplicitKey("post"))
	require.NotNil(t, implicit)
	assert.Equal(t, entities.KindImplicit, implicit.Kind())
	assert.Equal(t, "attachments", implicit.InverseKey())
}

func TestRelationship_SyncReordersAndDrops(t *testing.T) {
	s := newFakeStore()
	post := ref("post", "1")
	c1, c2, c3 := ref("comment", "1"), ref("comment", "2"), ref("comment", "3")

	comments := s.rel(t, post, "comments")
	require.NoError(t, comments.Sync([]entities.RecordRef{c1, c2, c3}))
	require.NoError(t, comments.Sync([]entities.RecordRef{c3, c1}))

	assert.Equal(t, []entities.RecordRef{c3, c1}, comments.Members().ToArray())
	_, ok := s.rel(t, c2, "post").InverseRecord()
	assert.False(t, ok)
	got, _ := s.rel(t, c3, "post").InverseRecord()
	assert.Equal(t, post, got)
}

func TestRelationship_ImplicitInverse(t *testing.T) {
	s := newFakeStore()
	post, tag := ref("post", "1"), ref("tag", "1")

	tags := s.rel(t, post, "tags")
	require.NoError(t, tags.AddRecord(tag))

	implicit := s.owner(tag).table.Get(ImplicitKey("post"))
	require.NotNil(t, implicit)
	assert.Equal(t, []entities.RecordRef{post}, implicit.Members().ToArray())
	assert.False(t, implicit.IsDirty())

	tags.RemoveRecord(tag)
	assert.True(t, implicit.Members().IsEmpty())
	assert.True(t, tags.Members().IsEmpty())
}

func TestRelationship_RemoveToleratesMissingInverse(t *testing.T) {
	s := newFakeStore()
	post, c1 := ref("post", "1"), ref("comment", "1")

	comments := s.rel(t, post, "comments")
	require.NoError(t, comments.AddRecord(c1))
	s.tornDown[c1] = true

	comments.RemoveRecord(c1)
	assert.True(t, comments.Members().IsEmpty())

	comments.RemoveRecord(ref("comment", "404"))
}

func TestRelationship_ChangeNotifications(t *testing.T) {
	s := newFakeStore()
	p1, a1 := ref("person", "1"), ref("address", "1")
	owner := s.owner(p1)
	owner.server["address"] = []entities.RecordRef{}

	address := s.rel(t, p1, "address")
	require.NoError(t, address.AddRecord(a1))
	address.RemoveRecord(a1)

	require.Len(t, owner.changes, 2)
	assert.Equal(t, ChangeAdded, owner.changes[0].Kind)
	assert.Equal(t, a1, owner.changes[0].Value)
	assert.Equal(t, "address", owner.changes[0].Relation.Name)
	assert.Empty(t, owner.changes[0].Previous)
	assert.Equal(t, ChangeRemoved, owner.changes[1].Kind)
	assert.Equal(t, 2, owner.propertyChanges["address"])
	assert.Positive(t, owner.arrayUpdates)
}

func TestRelationship_PositionalAddOfUnloadedRecordRequestsFetch(t *testing.T) {
	s := newFakeStore()
	post := ref("post", "1")
	owner := s.owner(post)
	comments := s.rel(t, post, "comments")

	require.NoError(t, comments.AddRecord(ref("comment", "1")))
	assert.Zero(t, owner.propertyChanges["comments"])

	require.NoError(t, comments.AddRecordAt(ref("comment", "2"), 0))
	assert.Equal(t, 1, owner.propertyChanges["comments"])

	s.loaded[ref("comment", "3")] = true
	require.NoError(t, comments.AddRecordAt(ref("comment", "3"), 0))
	assert.Equal(t, 1, owner.propertyChanges["comments"])
	assert.Equal(t, []entities.RecordRef{ref("comment", "3"), ref("comment", "2"), ref("comment", "1")}, comments.Members().ToArray())
}

func TestRelationship_AddRecordAtMovesExistingMember(t *testing.T) {
	s := newFakeStore()
	comments := s.rel(t, ref("post", "1"), "comments")
	c1, c2 := ref("comment", "1"), ref("comment", "2")
	require.NoError(t, comments.AddRecords([]entities.RecordRef{c1, c2}))

	require.NoError(t, comments.AddRecordAt(c2, 0))
	assert.Equal(t, []entities.RecordRef{c2, c1}, comments.Members().ToArray())

	require.ErrorIs(t, comments.AddRecordAt(c1, 5), ErrState)
}

func TestRelationship_DisconnectAndReconnect(t *testing.T) {
	s := newFakeStore()
	post := ref("post", "1")
	c1, c2 := ref("comment", "1"), ref("comment", "2")
	comments := s.rel(t, post, "comments")
	require.NoError(t, comments.AddRecords([]entities.RecordRef{c1, c2}))

	comments.Disconnect()
	assert.Equal(t, 2, comments.Members().Size())
	_, ok := s.rel(t, c1, "post").InverseRecord()
	assert.False(t, ok)

	require.NoError(t, comments.Reconnect())
	got, ok := s.rel(t, c2, "post").InverseRecord()
	require.True(t, ok)
	assert.Equal(t, post, got)
}

func TestRelationship_Clear(t *testing.T) {
	s := newFakeStore()
	post := ref("post", "1")
	c1 := ref("comment", "1")
	comments := s.rel(t, post, "comments")
	require.NoError(t, comments.AddRecord(c1))

	comments.Clear()
	assert.True(t, comments.Members().IsEmpty())
	_, ok := s.rel(t, c1, "post").InverseRecord()
	assert.False(t, ok)
}

func TestRelationship_UpdateLink(t *testing.T) {
	s := newFakeStore()
	post := ref("post", "1")
	owner := s.owner(post)
	comments := s.rel(t, post, "comments")

	err := comments.UpdateLink(42)
	require.ErrorIs(t, err, ErrProtocol)
	assert.Empty(t, comments.Link())

	require.NoError(t, comments.UpdateLink("/posts/1/comments"))
	assert.Equal(t, "/posts/1/comments", comments.Link())
	assert.Equal(t, 1, owner.propertyChanges["comments"])

	require.NoError(t, comments.UpdateLink("/posts/1/comments"))
	assert.Equal(t, 1, owner.propertyChanges["comments"])

	link := "/posts/1/all-comments"
	require.NoError(t, comments.UpdateLink(&link))
	assert.Equal(t, link, comments.Link())

	require.NoError(t, comments.UpdateLink(nil))
	assert.Empty(t, comments.Link())
}

func TestRelationship_TableRejectsUndeclaredKey(t *testing.T) {
	s := newFakeStore()
	_, err := s.owner(ref("post", "1")).table.GetOrCreate("missing")
	require.ErrorIs(t, err, ErrState)
}

func TestRelationship_TableDestroy(t *testing.T) {
	s := newFakeStore()
	post := ref("post", "1")
	table := s.owner(post).table
	comments := s.rel(t, post, "comments")
	s.rel(t, post, "author")

	assert.Equal(t, []string{"author", "comments"}, table.Keys())

	table.Destroy()
	assert.True(t, comments.ManyArray().IsDestroyed())
	assert.False(t, table.Has("comments"))
}

func TestRelationship_WrongVariantOperations(t *testing.T) {
	s := newFakeStore()
	post := ref("post", "1")
	comments := s.rel(t, post, "comments")
	author := s.rel(t, post, "author")

	_, err := comments.GetRecord(awaitCtx(t))
	assert.True(t, errors.Is(err, ErrState))
	_, err = author.GetRecords(awaitCtx(t))
	assert.True(t, errors.Is(err, ErrState))
	assert.Nil(t, author.ManyArray())

	_, err = author.Reload(awaitCtx(t)).Await(awaitCtx(t))
	assert.ErrorIs(t, err, ErrState)
}

// assertTwoWay checks that q is among p's posts exactly when p is q's author
func assertTwoWay(t *testing.T, s *fakeStore, people, posts []entities.RecordRef, step int, op string) {
	t.Helper()
	for _, q := range posts {
		author := s.rel(t, q, "author")
		require.LessOrEqual(t, author.Members().Size(), 1, "step %d (%s): %s has several authors", step, op, q)
		current, hasAuthor := author.InverseRecord()
		require.Equal(t, hasAuthor, author.Members().Size() == 1, "step %d (%s): %s author out of sync", step, op, q)
		for _, p := range people {
			inPosts := s.rel(t, p, "posts").Members().Has(q)
			isAuthor := hasAuthor && current == p
			require.Equal(t, isAuthor, inPosts,
				"step %d (%s): %s in %s.posts = %v but %s.author = %s is %v", step, op, q, p, inPosts, q, p, isAuthor)
		}
	}
}

func TestRelationship_RandomEditsKeepBothSidesInSync(t *testing.T) {
	people := []entities.RecordRef{ref("person", "1"), ref("person", "2"), ref("person", "3")}
	posts := []entities.RecordRef{ref("post", "1"), ref("post", "2"), ref("post", "3"), ref("post", "4"), ref("post", "5")}

	for seed := int64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			s := newFakeStore()

			for step := 0; step < 200; step++ {
				p := people[rng.Intn(len(people))]
				q := posts[rng.Intn(len(posts))]
				owned := s.rel(t, p, "posts")
				author := s.rel(t, q, "author")

				var op string
				switch rng.Intn(9) {
				case 0:
					op = fmt.Sprintf("%s.posts add %s", p, q)
					require.NoError(t, owned.AddRecord(q))
				case 1:
					idx := rng.Intn(owned.Members().Size() + 1)
					op = fmt.Sprintf("%s.posts add %s at %d", p, q, idx)
					require.NoError(t, owned.AddRecordAt(q, idx))
				case 2:
					op = fmt.Sprintf("%s.posts remove %s", p, q)
					owned.RemoveRecord(q)
				case 3:
					if rng.Intn(3) == 0 {
						op = fmt.Sprintf("%s.author sync nil", q)
						require.NoError(t, author.Sync(nil))
					} else {
						op = fmt.Sprintf("%s.author sync %s", q, p)
						require.NoError(t, author.Sync(p))
					}
				case 4:
					var subset []entities.RecordRef
					for _, i := range rng.Perm(len(posts)) {
						if rng.Intn(2) == 0 {
							subset = append(subset, posts[i])
						}
					}
					op = fmt.Sprintf("%s.posts sync %v", p, subset)
					require.NoError(t, owned.Sync(subset))
				case 5:
					op = fmt.Sprintf("save %s.posts and %s.author", p, q)
					s.owner(p).server["posts"] = owned.Members().ToArray()
					s.owner(q).server["author"] = author.Members().ToArray()
				case 6:
					op = fmt.Sprintf("%s.posts rollback", p)
					require.NoError(t, owned.Rollback())
				case 7:
					op = fmt.Sprintf("%s.author rollback", q)
					require.NoError(t, author.Rollback())
				default:
					op = fmt.Sprintf("%s.posts disconnect and reconnect", p)
					owned.Disconnect()
					require.NoError(t, owned.Reconnect())
				}
				assertTwoWay(t, s, people, posts, step, op)
			}
		})
	}
}
