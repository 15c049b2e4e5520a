package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"offcampus/internal/feature"
)

// MissingCategory 是类别缺失时的占位类别。
const MissingCategory = "missing"

// ErrNotFitted 表示在未拟合的管道上调用了 Transform。
var ErrNotFitted = errors.New("pipeline not fitted")

// SchemaError 表示输入行中缺少必需的特征列，不可恢复。
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("required column %q absent from input rows", e.Column)
}

// Config 控制参与编码的列集合。
type Config struct {
	NumericColumns     []string `yaml:"numeric_columns" json:"numeric_columns"`
	CategoricalColumns []string `yaml:"categorical_columns" json:"categorical_columns"`
}

// DefaultConfig 返回规范列集：六个数值列加 details 类别列。
func DefaultConfig() Config {
	return Config{
		NumericColumns:     append([]string(nil), feature.NumericColumns...),
		CategoricalColumns: []string{feature.ColDetails},
	}
}

// NumericStat 保存单个数值列的拟合统计量。
type NumericStat struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
}

// Vocabulary 保存单个类别列的拟合词表，类别有序以保证确定性。
type Vocabulary struct {
	Column     string   `json:"column"`
	Categories []string `json:"categories"`
}

// Fitted 是一次拟合产出的全部状态，可 JSON 序列化并在加载后复用。
// 查询阶段禁止重新拟合：统计量与词表必须与建索引时一致。
type Fitted struct {
	NumericStats []NumericStat `json:"numeric_stats"`
	Vocabularies []Vocabulary  `json:"vocabularies"`

	index map[string]map[string]int
}

// Fit 在当前全量语料上计算每列均值/标准差与类别词表。
func Fit(rows []feature.Row, cfg Config) (*Fitted, error) {
	fitted := &Fitted{}

	for _, col := range cfg.NumericColumns {
		if !knownColumn(feature.NumericColumns, col) {
			return nil, &SchemaError{Column: col}
		}

		var sum float64
		var count int
		for _, row := range rows {
			if v := row.Numeric(col); v != nil {
				sum += *v
				count++
			}
		}
		if count == 0 {
			return nil, &SchemaError{Column: col}
		}
		mean := sum / float64(count)

		var sq float64
		for _, row := range rows {
			if v := row.Numeric(col); v != nil {
				d := *v - mean
				sq += d * d
			}
		}
		std := math.Sqrt(sq / float64(count))
		if std == 0 {
			std = 1
		}
		fitted.NumericStats = append(fitted.NumericStats, NumericStat{Column: col, Mean: mean, Std: std})
	}

	for _, col := range cfg.CategoricalColumns {
		if !knownColumn(feature.CategoricalColumns, col) {
			return nil, &SchemaError{Column: col}
		}

		seen := make(map[string]struct{})
		for _, row := range rows {
			v := row.Categorical(col)
			if v == "" {
				v = MissingCategory
			}
			seen[v] = struct{}{}
		}
		categories := make([]string, 0, len(seen))
		for v := range seen {
			categories = append(categories, v)
		}
		sort.Strings(categories)
		fitted.Vocabularies = append(fitted.Vocabularies, Vocabulary{Column: col, Categories: categories})
	}

	fitted.ensureIndex()
	return fitted, nil
}

// Dim 返回输出向量宽度。
func (f *Fitted) Dim() int {
	dim := len(f.NumericStats)
	for _, vocab := range f.Vocabularies {
		dim += len(vocab.Categories)
	}
	return dim
}

// Transform 用拟合时的统计量编码特征行：
// 数值缺失 → 均值填充后标准化；类别缺失 → 占位类别；
// 拟合时未见过的类别编码为全零，超出历史区间的数值不裁剪。
func (f *Fitted) Transform(rows []feature.Row) ([][]float64, error) {
	if f == nil || (len(f.NumericStats) == 0 && len(f.Vocabularies) == 0) {
		return nil, ErrNotFitted
	}
	f.ensureIndex()

	matrix := make([][]float64, len(rows))
	for i, row := range rows {
		vec := make([]float64, 0, f.Dim())

		for _, stat := range f.NumericStats {
			v := stat.Mean
			if p := row.Numeric(stat.Column); p != nil {
				v = *p
			}
			vec = append(vec, (v-stat.Mean)/stat.Std)
		}

		for _, vocab := range f.Vocabularies {
			block := make([]float64, len(vocab.Categories))
			v := row.Categorical(vocab.Column)
			if v == "" {
				v = MissingCategory
			}
			if idx, ok := f.index[vocab.Column][v]; ok {
				block[idx] = 1
			}
			vec = append(vec, block...)
		}

		matrix[i] = vec
	}
	return matrix, nil
}

// TransformRow 编码单行，便于构造查询向量。
func (f *Fitted) TransformRow(row feature.Row) ([]float64, error) {
	matrix, err := f.Transform([]feature.Row{row})
	if err != nil {
		return nil, err
	}
	return matrix[0], nil
}

// Prepare 重建词表索引。反序列化得到的 Fitted 在并发查询前
// 必须先调用一次，之后整个对象只读。
func (f *Fitted) Prepare() {
	f.index = nil
	f.ensureIndex()
}

func (f *Fitted) ensureIndex() {
	if f.index != nil {
		return
	}
	f.index = make(map[string]map[string]int, len(f.Vocabularies))
	for _, vocab := range f.Vocabularies {
		m := make(map[string]int, len(vocab.Categories))
		for i, c := range vocab.Categories {
			m[c] = i
		}
		f.index[vocab.Column] = m
	}
}

func knownColumn(known []string, col string) bool {
	for _, k := range known {
		if k == col {
			return true
		}
	}
	return false
}
