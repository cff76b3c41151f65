package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/thalesfsp/regtune"
)

// ErrInvalidSplit is returned when a split would leave either side empty or
// a stratum cannot be divided.
var ErrInvalidSplit = errors.New("invalid train/test split")

// Split is a train/test partition of a Frame.
type Split struct {
	XTrain regtune.FeatureMatrix
	XTest  regtune.FeatureMatrix
	YTrain regtune.TargetVector
	YTest  regtune.TargetVector
}

// TrainTestSplit partitions frame into training and test rows.
//
// Parameters:
// - frame: The cleaned dataset
// - testSize: Fraction of rows in the test set, in (0, 1)
// - seed: Seed of the shuffle, the same seed gives the same split
// - stratify: Keep the proportion of every target value in both sets
//
// Important notes:
// - The test set holds ceil(testSize * rows) rows
// - Stratification treats every distinct target value as a class; each
// class needs at least two rows
// - Rows are shared with frame, not copied
func TrainTestSplit(frame *Frame, testSize float64, seed int64, stratify bool) (Split, error) {
	n := len(frame.X)

	if testSize <= 0 || testSize >= 1 {
		return Split{}, fmt.Errorf("%w: test size %v outside (0, 1)", ErrInvalidSplit, testSize)
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || nTest >= n {
		return Split{}, fmt.Errorf("%w: %d rows cannot give a test set of %d", ErrInvalidSplit, n, nTest)
	}

	rng := rand.New(rand.NewSource(seed))

	var (
		test []int
		err  error
	)

	if stratify {
		test, err = stratifiedTest(frame.Y, nTest, rng)
		if err != nil {
			return Split{}, err
		}
	} else {
		test = rng.Perm(n)[:nTest]
	}

	inTest := make([]bool, n)
	for _, i := range test {
		inTest[i] = true
	}

	train := make([]int, 0, n-nTest)
	for _, i := range rng.Perm(n) {
		if !inTest[i] {
			train = append(train, i)
		}
	}

	rng.Shuffle(len(test), func(a, b int) { test[a], test[b] = test[b], test[a] })

	split := Split{
		XTrain: make(regtune.FeatureMatrix, 0, len(train)),
		XTest:  make(regtune.FeatureMatrix, 0, len(test)),
		YTrain: make(regtune.TargetVector, 0, len(train)),
		YTest:  make(regtune.TargetVector, 0, len(test)),
	}

	for _, i := range train {
		split.XTrain = append(split.XTrain, frame.X[i])
		split.YTrain = append(split.YTrain, frame.Y[i])
	}

	for _, i := range test {
		split.XTest = append(split.XTest, frame.X[i])
		split.YTest = append(split.YTest, frame.Y[i])
	}

	return split, nil
}

// stratifiedTest picks nTest row indices so that every class is represented
// in proportion to its size. Quotas are floored and the remaining rows go to
// the classes with the largest fractional parts.
func stratifiedTest(y regtune.TargetVector, nTest int, rng *rand.Rand) ([]int, error) {
	byClass := make(map[float64][]int)
	for i, v := range y {
		byClass[v] = append(byClass[v], i)
	}

	classes := make([]float64, 0, len(byClass))
	for c, rows := range byClass {
		if len(rows) < 2 {
			return nil, fmt.Errorf("%w: target value %v has a single row", ErrInvalidSplit, c)
		}

		classes = append(classes, c)
	}

	sort.Float64s(classes)

	if len(classes) > nTest || len(classes) > len(y)-nTest {
		return nil, fmt.Errorf("%w: %d classes do not fit a test set of %d and a training set of %d", ErrInvalidSplit, len(classes), nTest, len(y)-nTest)
	}

	type quota struct {
		class float64
		take  int
		frac  float64
	}

	quotas := make([]quota, len(classes))
	assigned := 0

	for k, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(len(y))
		take := int(math.Floor(exact))

		quotas[k] = quota{class: c, take: take, frac: exact - float64(take)}
		assigned += take
	}

	order := make([]int, len(quotas))
	for k := range order {
		order[k] = k
	}

	sort.SliceStable(order, func(a, b int) bool {
		return quotas[order[a]].frac > quotas[order[b]].frac
	})

	// Every class keeps at least one training row. Classes at that cap pass
	// their share to the next ones, which may take several rounds.
	for assigned < nTest {
		progress := false

		for _, k := range order {
			if assigned == nTest {
				break
			}

			if quotas[k].take < len(byClass[quotas[k].class])-1 {
				quotas[k].take++
				assigned++
				progress = true
			}
		}

		if !progress {
			return nil, fmt.Errorf("%w: only %d of %d test rows can be drawn", ErrInvalidSplit, assigned, nTest)
		}
	}

	test := make([]int, 0, nTest)

	for _, q := range quotas {
		rows := byClass[q.class]
		rng.Shuffle(len(rows), func(a, b int) { rows[a], rows[b] = rows[b], rows[a] })

		test = append(test, rows[:q.take]...)
	}

	return test, nil
}
