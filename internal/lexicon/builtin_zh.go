package lexicon

import "github.com/MrWong99/chartvox/pkg/types"

// builtins maps each language profile to a constructor of its tables.
// Constructors return fresh slices so callers may modify the result.
var builtins = map[Language]func() []Entry{
	LangZhTW: zhTW,
	LangZhCN: zhCN,
	LangEnUS: enUS,
}

func zhTW() []Entry {
	return []Entry{
		{
			Category:    types.ChiefComplaint,
			NameAliases: []string{"主訴"},
			Keywords:    []string{"哪裡不舒服", "哪裡痛", "為什麼來", "困擾", "抱怨", "感覺不適", "不舒服"},
			SubLists: map[string][]string{
				"symptoms": {"頭痛", "頭暈", "噁心", "嘔吐", "胸悶", "胸痛", "腹痛", "腹瀉", "便秘",
					"咳嗽", "咳痰", "呼吸困難", "喉嚨痛", "發燒", "發熱", "疼痛", "不適", "難受"},
			},
		},
		{
			Category:    types.PresentIllness,
			NameAliases: []string{"現病史"},
			Keywords: []string{"什麼時候開始", "從什麼時候", "多久了", "何時出現", "發作", "症狀",
				"突然", "漸漸", "開始", "出現", "持續", "發生", "越來越"},
			SubLists: map[string][]string{
				"time": {"天前", "週前", "星期前", "月前", "年前", "昨天", "前天", "今天", "早上",
					"中午", "下午", "晚上", "半夜", "凌晨", "上週", "最近"},
			},
		},
		{
			Category:    types.AccompaniedSymptoms,
			NameAliases: []string{"伴隨症狀"},
			Keywords:    []string{"伴隨", "同時", "也有", "還有沒有", "其他不適", "其它症狀", "另外", "並且", "還會"},
		},
		{
			Category:    types.PastMedicalHistory,
			NameAliases: []string{"過去病史", "既往史"},
			Keywords: []string{"過去", "以前", "曾經", "疾病史", "手術史", "住院", "開過刀", "得過",
				"之前", "從小", "年輕時", "既往", "多年前"},
			SubLists: map[string][]string{
				"conditions": {"高血壓", "糖尿病", "氣喘", "心臟病", "中風", "肝炎", "腎臟病", "癌症", "痛風"},
			},
		},
		{
			Category:    types.Medications,
			NameAliases: []string{"用藥史"},
			Keywords: []string{"藥物", "用藥", "服用", "吃藥", "藥品", "處方", "長期用藥", "慢性用藥",
				"保健品", "維他命", "中藥", "西藥", "成藥", "止痛藥", "劑量", "一天幾次"},
			SubLists: map[string][]string{
				"drugs": {"普拿疼", "胰島素", "降血壓藥", "抗生素", "類固醇", "安眠藥"},
			},
		},
		{
			Category:    types.Allergies,
			NameAliases: []string{"過敏史"},
			Keywords: []string{"過敏", "敏感", "不能吃", "不能用", "蕁麻疹", "紅疹", "藥物過敏",
				"不良反應", "禁忌", "忌用"},
			SubLists: map[string][]string{
				"reactions": {"起疹子", "發癢", "腫脹"},
			},
		},
		{
			Category:    types.FamilyHistory,
			NameAliases: []string{"家族史"},
			// Relations score as keywords so they outrank the condition named
			// alongside them.
			Keywords: []string{"家人", "父母", "兄弟姐妹", "親戚", "遺傳", "家族", "家裡",
				"爸爸", "媽媽", "父親", "母親", "爺爺", "奶奶", "外公", "外婆",
				"阿公", "阿嬤", "兄弟", "姐妹", "兒子", "女兒"},
		},
		{
			Category:    types.SocialHistory,
			NameAliases: []string{"社會史"},
			Keywords: []string{"工作", "職業", "抽菸", "吸菸", "喝酒", "飲酒", "檳榔", "運動", "作息",
				"生活習慣", "旅遊", "出國", "嗜好", "飲食", "睡眠"},
		},
		{
			Category:    types.PhysicalExam,
			NameAliases: []string{"體格檢查", "理學檢查"},
			Keywords: []string{"觸診", "聽診", "叩診", "視診", "查體", "體檢", "呼吸音", "心音",
				"腸蠕動音", "壓痛", "檢查發現"},
		},
		{
			Category:    types.VitalSigns,
			NameAliases: []string{"生命徵象", "生命體徵"},
			Keywords: []string{"體溫", "血壓", "心跳", "呼吸次數", "體重", "身高", "血氧", "脈搏",
				"心率", "血糖", "hr", "bp", "spo2"},
		},
		{
			Category:    types.LabResults,
			NameAliases: []string{"實驗室檢查", "檢驗報告"},
			Keywords: []string{"實驗室", "化驗", "檢驗", "抽血", "血常規", "尿常規", "生化", "白血球",
				"血紅素", "肝指數", "腎功能", "膽固醇"},
		},
		{
			Category:    types.ImagingResults,
			NameAliases: []string{"影像學檢查", "影像檢查"},
			Keywords:    []string{"影像", "超音波", "x光", "ct", "mri", "磁振造影", "電腦斷層", "造影", "放射"},
		},
		{
			Category:    types.Assessment,
			NameAliases: []string{"評估", "診斷"},
			Keywords:    []string{"考慮", "可能是", "傾向於", "診斷為", "初步診斷", "印象", "懷疑"},
		},
		{
			Category:    types.Plan,
			NameAliases: []string{"治療計劃", "計劃"},
			Keywords: []string{"處理", "安排", "治療", "建議", "手術", "處置", "追蹤", "回診", "複查",
				"開藥", "轉診", "衛教"},
		},
	}
}

func zhCN() []Entry {
	return []Entry{
		{
			Category:    types.ChiefComplaint,
			NameAliases: []string{"主诉"},
			Keywords:    []string{"哪里不舒服", "哪里痛", "为什么来", "困扰", "抱怨", "感觉不适", "不舒服"},
			SubLists: map[string][]string{
				"symptoms": {"头痛", "头晕", "恶心", "呕吐", "胸闷", "胸痛", "腹痛", "腹泻", "便秘",
					"咳嗽", "咳痰", "呼吸困难", "喉咙痛", "发烧", "发热", "疼痛", "不适", "难受"},
			},
		},
		{
			Category:    types.PresentIllness,
			NameAliases: []string{"现病史"},
			Keywords: []string{"什么时候开始", "从什么时候", "多久了", "何时出现", "发作", "症状",
				"突然", "渐渐", "开始", "出现", "持续", "发生", "越来越"},
			SubLists: map[string][]string{
				"time": {"天前", "周前", "星期前", "月前", "年前", "昨天", "前天", "今天", "早上",
					"中午", "下午", "晚上", "半夜", "凌晨", "上周", "最近"},
			},
		},
		{
			Category:    types.AccompaniedSymptoms,
			NameAliases: []string{"伴随症状"},
			Keywords:    []string{"伴随", "同时", "也有", "还有没有", "其他不适", "其它症状", "另外", "并且", "还会"},
		},
		{
			Category:    types.PastMedicalHistory,
			NameAliases: []string{"既往史", "过去病史"},
			Keywords: []string{"过去", "以前", "曾经", "疾病史", "手术史", "住院", "开过刀", "得过",
				"之前", "从小", "年轻时", "既往", "多年前"},
			SubLists: map[string][]string{
				"conditions": {"高血压", "糖尿病", "哮喘", "心脏病", "中风", "肝炎", "肾病", "癌症", "痛风"},
			},
		},
		{
			Category:    types.Medications,
			NameAliases: []string{"用药史"},
			Keywords: []string{"药物", "用药", "服用", "吃药", "药品", "处方", "长期用药", "慢性用药",
				"保健品", "维生素", "中药", "西药", "成药", "止痛药", "剂量", "一天几次"},
			SubLists: map[string][]string{
				"drugs": {"对乙酰氨基酚", "胰岛素", "降压药", "抗生素", "激素", "安眠药"},
			},
		},
		{
			Category:    types.Allergies,
			NameAliases: []string{"过敏史"},
			Keywords: []string{"过敏", "敏感", "不能吃", "不能用", "荨麻疹", "红疹", "药物过敏",
				"不良反应", "禁忌", "忌用"},
			SubLists: map[string][]string{
				"reactions": {"起疹子", "发痒", "肿胀"},
			},
		},
		{
			Category:    types.FamilyHistory,
			NameAliases: []string{"家族史"},
			Keywords: []string{"家人", "父母", "兄弟姐妹", "亲戚", "遗传", "家族", "家里人",
				"爸爸", "妈妈", "父亲", "母亲", "爷爷", "奶奶", "外公", "外婆",
				"兄弟", "姐妹", "儿子", "女儿"},
		},
		{
			Category:    types.SocialHistory,
			NameAliases: []string{"个人史", "社会史"},
			Keywords: []string{"工作", "职业", "抽烟", "吸烟", "喝酒", "饮酒", "槟榔", "运动", "作息",
				"生活习惯", "旅游", "出国", "嗜好", "饮食", "睡眠"},
		},
		{
			Category:    types.PhysicalExam,
			NameAliases: []string{"体格检查", "查体"},
			Keywords: []string{"触诊", "听诊", "叩诊", "视诊", "体检", "呼吸音", "心音",
				"肠鸣音", "压痛", "检查发现"},
		},
		{
			Category:    types.VitalSigns,
			NameAliases: []string{"生命体征"},
			Keywords: []string{"体温", "血压", "心跳", "呼吸次数", "体重", "身高", "血氧", "脉搏",
				"心率", "血糖", "hr", "bp", "spo2"},
		},
		{
			Category:    types.LabResults,
			NameAliases: []string{"实验室检查", "化验单"},
			Keywords: []string{"实验室", "化验", "检验", "抽血", "血常规", "尿常规", "生化", "白细胞",
				"血红蛋白", "肝功能", "肾功能", "胆固醇"},
		},
		{
			Category:    types.ImagingResults,
			NameAliases: []string{"影像学检查", "影像检查"},
			Keywords:    []string{"影像", "超声", "b超", "x光", "ct", "mri", "磁共振", "造影", "放射"},
		},
		{
			Category:    types.Assessment,
			NameAliases: []string{"评估", "诊断"},
			Keywords:    []string{"考虑", "可能是", "倾向于", "诊断为", "初步诊断", "印象", "怀疑"},
		},
		{
			Category:    types.Plan,
			NameAliases: []string{"治疗计划", "计划"},
			Keywords: []string{"处理", "安排", "治疗", "建议", "手术", "处置", "随访", "复诊", "复查",
				"开药", "转诊", "宣教"},
		},
	}
}
